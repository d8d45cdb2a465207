package context

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceFromRoute(t *testing.T) {
	cases := []struct {
		route string
		id    string
		want  Resource
		ok    bool
	}{
		{route: "/api/customers/:id/pay-debt", id: "42", want: Resource{Kind: "customer", ID: "42", Action: "pay-debt"}, ok: true},
		{route: "/api/bills/:id", id: "7", want: Resource{Kind: "bill", ID: "7"}, ok: true},
		{route: "/api/rates/preview", want: Resource{Kind: "rate", Action: "preview"}, ok: true},
		{route: "/api/metals", want: Resource{Kind: "metal"}, ok: true},
		{route: "/metrics"},
		{route: "/api/unknown/:id", id: "1"},
	}
	for _, tc := range cases {
		t.Run(tc.route, func(t *testing.T) {
			got, ok := ResourceFromRoute(tc.route, tc.id)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWithResourceRoundTrip(t *testing.T) {
	ctx := WithResource(stdcontext.Background(), Resource{Kind: "bill", ID: "9"})
	r, ok := ResourceFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "bill_id", r.LogKey())

	_, ok = ResourceFromContext(WithResource(stdcontext.Background(), Resource{}))
	assert.False(t, ok)
}
