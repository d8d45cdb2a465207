package domain

import (
	"fmt"
	"math"

	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
)

const replayTolerance = 1e-6

type Balance struct {
	TotalDebt      float64 `json:"total_debt"`
	TotalPurchases float64 `json:"total_purchases"`
	TotalPaid      float64 `json:"total_paid"`
	BillCount      int     `json:"bill_count"`
}

// BalanceOf reads the cached counters of a customer.
func BalanceOf(c *customerdomain.Customer) Balance {
	return Balance{
		TotalDebt:      c.TotalDebt,
		TotalPurchases: c.TotalPurchases,
		TotalPaid:      c.TotalPaid,
		BillCount:      c.BillCount,
	}
}

// Equal compares two balances within floating point noise.
func (b Balance) Equal(o Balance) bool {
	return near(b.TotalDebt, o.TotalDebt) &&
		near(b.TotalPurchases, o.TotalPurchases) &&
		near(b.TotalPaid, o.TotalPaid) &&
		b.BillCount == o.BillCount
}

// Replay folds an ordered history into the balance it implies. It fails when
// an entry does not start where the previous one ended or when its own
// before/after arithmetic does not hold.
func Replay(entries []customerdomain.PaymentHistory) (Balance, error) {
	var b Balance
	for i, e := range entries {
		if !near(e.DebtBefore, b.TotalDebt) {
			return b, fmt.Errorf("%w: entry %d starts at %.2f, previous ended at %.2f", ErrHistoryDrift, i, e.DebtBefore, b.TotalDebt)
		}

		var expected float64
		switch e.Kind {
		case customerdomain.EntrySale:
			expected = e.DebtBefore + e.DebtAdded
			b.TotalPurchases += e.BillAmount
			b.TotalPaid += e.AmountPaid
			b.BillCount++
		case customerdomain.EntryPayment:
			expected = math.Max(0, e.DebtBefore-e.AmountPaid)
			b.TotalPaid += e.AmountPaid
		case customerdomain.EntryAdjustment:
			expected = e.DebtBefore + e.DebtAdded
		case customerdomain.EntryReversal:
			expected = math.Max(0, e.DebtBefore+e.DebtAdded)
			b.TotalPurchases = math.Max(0, b.TotalPurchases-e.BillAmount)
			b.TotalPaid = math.Max(0, b.TotalPaid-e.AmountPaid)
			if b.BillCount > 0 {
				b.BillCount--
			}
		default:
			return b, fmt.Errorf("%w: entry %d has unknown kind %q", ErrHistoryDrift, i, e.Kind)
		}
		if !near(e.DebtAfter, expected) || e.DebtAfter < 0 {
			return b, fmt.Errorf("%w: entry %d ends at %.2f, expected %.2f", ErrHistoryDrift, i, e.DebtAfter, expected)
		}
		b.TotalDebt = e.DebtAfter
	}
	return b, nil
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= replayTolerance
}

// UpTo returns the prefix of a version-ordered history whose entries were
// produced at or below version.
func UpTo(entries []customerdomain.PaymentHistory, version int64) []customerdomain.PaymentHistory {
	for i, e := range entries {
		if e.Version > version {
			return entries[:i]
		}
	}
	return entries
}
