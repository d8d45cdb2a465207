package logger

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/aurum/internal/actorcontext"
	obscontext "github.com/smallbiznis/aurum/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestAndActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-7")
	ctx = actorcontext.WithActor(ctx, actorcontext.Actor{ID: "counter-2", Role: "staff"})
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-7", fields["request_id"])
		assert.Equal(t, "counter-2", fields["actor_id"])
		assert.Equal(t, "staff", fields["actor_role"])
		assert.NotContains(t, fields, "trace_id")
	}
}

func TestWithContextAddsResourceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := obscontext.WithResource(context.Background(), obscontext.Resource{Kind: "bill", ID: "1234"})
	WithContext(ctx, zap.New(core)).Info("hello")

	if assert.Len(t, logs.All(), 1) {
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "bill", fields["resource"])
		assert.Equal(t, "1234", fields["bill_id"])
	}
}

func TestRequestLevel(t *testing.T) {
	payment := obscontext.Resource{Kind: "customer", ID: "1", Action: "pay-debt"}
	preview := obscontext.Resource{Kind: "rate", Action: "preview"}

	assert.Equal(t, zapcore.DebugLevel, requestLevel("/metrics", obscontext.Resource{}, 200, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/bills", obscontext.Resource{Kind: "bill"}, 503, "transient_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/customers/:id/pay-debt", payment, 409, "conflict"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/rates/preview", preview, 400, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/bills/:id", obscontext.Resource{Kind: "bill", ID: "1"}, 409, "conflict"))
	assert.True(t, isLedgerWrite(payment))
	assert.False(t, isLedgerWrite(obscontext.Resource{Kind: "customer", ID: "1"}))
}

func TestSamplingSparesLedgerLoggers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(newSampledCore(core, time.Minute, 1, 0))

	for i := 0; i < 3; i++ {
		base.Named("bill.service").Info("bill created")
		base.Named("ledger.service").Info("ledger entry recorded")
		base.Named("ledgerish").Info("other")
	}

	assert.Equal(t, 1, logs.FilterMessage("bill created").Len())
	assert.Equal(t, 3, logs.FilterMessage("ledger entry recorded").Len())
	assert.Equal(t, 1, logs.FilterMessage("other").Len())
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from customers"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH x AS (SELECT 1) UPDATE customers SET version = 2"))
	assert.Equal(t, "DELETE", operationFromSQL("with stale as (select id from bills where note = 'x (select)') delete from bills"))
	assert.Equal(t, "SELECT", operationFromSQL("(SELECT 1) UNION (SELECT 2)"))
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO rate_changes (id) SELECT 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("PRAGMA foreign_keys = ON"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "customers", tableFromSQL(`UPDATE customers SET total_debt = ?, version = ? WHERE id = ? AND version = ?`))
	assert.Equal(t, "payment_history", tableFromSQL(`SELECT id FROM "payment_history" WHERE customer_id = ?`))
	assert.Equal(t, "bills", tableFromSQL("SELECT EXTRACT(YEAR FROM created_at) FROM bills"))
	assert.Equal(t, "rate_changes", tableFromSQL("INSERT INTO rate_changes (id) VALUES (?)"))
	assert.Equal(t, "", tableFromSQL("SELECT 1"))
}

func TestParamsFilterDropsValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1 WHERE phone = ?", "9999")
	assert.Equal(t, "SELECT 1 WHERE phone = ?", sql)
	assert.Nil(t, params)
}
