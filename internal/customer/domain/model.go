package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Customer struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"type:text;not null" json:"name"`
	Phone          string         `gorm:"type:text;not null;uniqueIndex:ux_customers_phone,where:deleted_at IS NULL" json:"phone"`
	Email          string         `gorm:"type:text" json:"email,omitempty"`
	Address        string         `gorm:"type:text" json:"address,omitempty"`
	TotalDebt      float64        `gorm:"not null;default:0" json:"total_debt"`
	TotalPurchases float64        `gorm:"not null;default:0" json:"total_purchases"`
	TotalPaid      float64        `gorm:"not null;default:0" json:"total_paid"`
	BillCount      int            `gorm:"not null;default:0" json:"bill_count"`
	Version        int64          `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Customer) TableName() string { return "customers" }

type EntryKind string

const (
	EntrySale       EntryKind = "sale"
	EntryPayment    EntryKind = "payment"
	EntryAdjustment EntryKind = "adjustment"
	EntryReversal   EntryKind = "reversal"
)

// PaymentHistory is one append-only ledger entry. Version is the customer
// version the entry produced, so entries of a customer are totally ordered.
type PaymentHistory struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID     snowflake.ID  `gorm:"not null;uniqueIndex:ux_payment_history_version,priority:1;uniqueIndex:ux_payment_history_idempotency,priority:1" json:"customer_id"`
	Version        int64         `gorm:"not null;uniqueIndex:ux_payment_history_version,priority:2" json:"version"`
	Kind           EntryKind     `gorm:"type:text;not null" json:"kind"`
	BillID         *snowflake.ID `json:"bill_id,omitempty"`
	BillNumber     *string       `gorm:"type:text" json:"bill_number,omitempty"`
	BillAmount     float64       `gorm:"not null;default:0" json:"bill_amount"`
	AmountPaid     float64       `gorm:"not null;default:0" json:"amount_paid"`
	DebtAdded      float64       `gorm:"not null;default:0" json:"debt_added"`
	DebtBefore     float64       `gorm:"not null;default:0" json:"debt_before"`
	DebtAfter      float64       `gorm:"not null;default:0" json:"debt_after"`
	Note           string        `gorm:"type:text" json:"note,omitempty"`
	IdempotencyKey *string       `gorm:"type:text;uniqueIndex:ux_payment_history_idempotency,priority:2" json:"idempotency_key,omitempty"`
	ActorID        string        `gorm:"type:text" json:"actor_id,omitempty"`
	Date           time.Time     `gorm:"not null" json:"date"`
}

func (PaymentHistory) TableName() string { return "payment_history" }
