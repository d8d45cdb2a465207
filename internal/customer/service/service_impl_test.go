package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/customer/domain"
	"github.com/smallbiznis/aurum/internal/customer/repository"
	"github.com/smallbiznis/aurum/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()
	return setupWithRepo(t, repository.Provide())
}

func setupWithRepo(t *testing.T, repo domain.Repository) (*gorm.DB, domain.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Customer{}, &domain.PaymentHistory{}))
	require.NoError(t, db.Exec(`CREATE TABLE bills (id INTEGER PRIMARY KEY, customer_id INTEGER)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)),
		Repo:  repo,
	})
	return db, svc
}

func TestCreateCustomer(t *testing.T) {
	_, svc := setup(t)

	c, err := svc.Create(context.Background(), domain.CreateRequest{
		Name:  "  Lakshmi Rao ",
		Phone: "+91 98450-12345",
		Email: "lakshmi@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lakshmi Rao", c.Name)
	assert.Equal(t, "+919845012345", c.Phone)
	assert.Equal(t, int64(1), c.Version)
	assert.Zero(t, c.TotalDebt)

	got, err := svc.Get(context.Background(), c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, c.Phone, got.Phone)
}

func TestCreateRejectsDuplicatePhone(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "A", Phone: "9845012345"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "B", Phone: "98450 12345"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestCreateValidation(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{name: "missing name", req: domain.CreateRequest{Phone: "9845012345"}, want: domain.ErrInvalidName},
		{name: "short phone", req: domain.CreateRequest{Name: "A", Phone: "123"}, want: domain.ErrInvalidPhone},
		{name: "letters in phone", req: domain.CreateRequest{Name: "A", Phone: "98450abc45"}, want: domain.ErrInvalidPhone},
		{name: "devanagari digits", req: domain.CreateRequest{Name: "A", Phone: "९८४५०१२३४५"}, want: domain.ErrInvalidPhone},
		{name: "fullwidth digits", req: domain.CreateRequest{Name: "A", Phone: "９８４５０１２３４５"}, want: domain.ErrInvalidPhone},
		{name: "bad email", req: domain.CreateRequest{Name: "A", Phone: "9845012345", Email: "nope"}, want: domain.ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFindOrCreateByPhone(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	first, err := svc.FindOrCreateByPhone(ctx, nil, domain.CreateRequest{Name: "Walk-in", Phone: "9000000001"})
	require.NoError(t, err)
	second, err := svc.FindOrCreateByPhone(ctx, nil, domain.CreateRequest{Name: "Other name", Phone: "900-000-0001"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Walk-in", second.Name)
}

// staleLookup hides existing customers from the first phone lookup, as if
// another request registered the phone between lookup and insert.
type staleLookup struct {
	domain.Repository
	misses int
}

func (r *staleLookup) FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.Repository.FindByPhone(ctx, db, phone)
}

func TestFindOrCreateByPhoneRereadsAfterDuplicate(t *testing.T) {
	repo := &staleLookup{Repository: repository.Provide()}
	db, svc := setupWithRepo(t, repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateRequest{Name: "Meera", Phone: "9000000002"})
	require.NoError(t, err)

	repo.misses = 1
	got, err := svc.FindOrCreateByPhone(ctx, nil, domain.CreateRequest{Name: "Walk-in", Phone: "9000000002"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM customers`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRegisterDuplicatePhone(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "Meera", Phone: "9000000003"})
	require.NoError(t, err)

	draft, err := svc.Draft(domain.CreateRequest{Name: "Other", Phone: "900 000 0003"})
	require.NoError(t, err)
	assert.NotZero(t, draft.ID)
	assert.ErrorIs(t, svc.Register(ctx, nil, draft), domain.ErrDuplicate)

	found, err := svc.FindByPhone(ctx, "900-000-0003")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Meera", found.Name)

	missing, err := svc.FindByPhone(ctx, "9000000099")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteUnlinksBillsAndKeepsHistory(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, domain.CreateRequest{Name: "A", Phone: "9845012345"})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`INSERT INTO bills (id, customer_id) VALUES (1, ?), (2, ?)`, c.ID, c.ID).Error)
	require.NoError(t, repository.Provide().InsertEntry(ctx, db, &domain.PaymentHistory{
		ID: 10, CustomerID: c.ID, Version: 2, Kind: domain.EntrySale, Date: time.Now(),
	}))

	require.NoError(t, svc.Delete(ctx, c.ID.String()))

	var linked int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM bills WHERE customer_id IS NOT NULL`).Scan(&linked).Error)
	assert.Zero(t, linked)

	var bills int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM bills`).Scan(&bills).Error)
	assert.Equal(t, int64(2), bills)

	var entries int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM payment_history WHERE customer_id = ?`, c.ID).Scan(&entries).Error)
	assert.Equal(t, int64(1), entries)

	_, err = svc.Get(ctx, c.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, c.ID.String()), domain.ErrNotFound)

	again, err := svc.Create(ctx, domain.CreateRequest{Name: "A again", Phone: "9845012345"})
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, again.ID)
}

func TestHistoryEmpty(t *testing.T) {
	_, svc := setup(t)
	c, err := svc.Create(context.Background(), domain.CreateRequest{Name: "A", Phone: "9845012345"})
	require.NoError(t, err)

	history, err := svc.History(context.Background(), c.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestListHistoryPages(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, domain.CreateRequest{Name: "A", Phone: "9845012345"})
	require.NoError(t, err)

	repo := repository.Provide()
	for v := int64(2); v <= 6; v++ {
		require.NoError(t, repo.InsertEntry(ctx, db, &domain.PaymentHistory{
			ID:         snowflake.ID(100 + v),
			CustomerID: c.ID,
			Version:    v,
			Kind:       domain.EntryPayment,
			AmountPaid: float64(v * 100),
			Date:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		}))
	}

	first, err := svc.ListHistory(ctx, c.ID.String(), pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, int64(2), first.Entries[0].Version)
	assert.True(t, first.PageInfo.HasMore)

	second, err := svc.ListHistory(ctx, c.ID.String(), pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.Equal(t, int64(4), second.Entries[0].Version)

	last, err := svc.ListHistory(ctx, c.ID.String(), pagination.Pagination{PageSize: 2, PageToken: second.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	assert.False(t, last.PageInfo.HasMore)

	_, err = svc.ListHistory(ctx, c.ID.String(), pagination.Pagination{PageToken: "%%%"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestGetInvalidID(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
