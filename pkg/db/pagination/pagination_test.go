package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10_000}.Limit())
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{Version: 42})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor.Version)

	_, err = DecodeCursor("not base64!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	empty, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestTrim(t *testing.T) {
	versions := func(v int64) Cursor { return Cursor{Version: v} }

	page, info, err := Trim([]int64{1, 2, 3}, 2, versions)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, page)
	assert.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)

	page, info, err = Trim([]int64{1, 2}, 2, versions)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
