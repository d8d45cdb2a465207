package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("customer.phone", "9999999999"),
		attribute.String("http.route", "/api/customers/:id"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New("insert failed\nINSERT INTO customers VALUES ('9999')"))
	assert.Equal(t, "insert failed", err.Error())

	long := SafeError(errors.New(strings.Repeat("x", 500)))
	assert.Len(t, long.Error(), 200)
}
