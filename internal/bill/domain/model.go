package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/pricing"
	productdomain "github.com/smallbiznis/aurum/internal/product/domain"
	"gorm.io/datatypes"
)

type PaymentMode string

const (
	PaymentCash         PaymentMode = "cash"
	PaymentCard         PaymentMode = "card"
	PaymentUPI          PaymentMode = "upi"
	PaymentBankTransfer PaymentMode = "bank_transfer"
	PaymentCredit       PaymentMode = "credit"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentBankTransfer, PaymentCredit:
		return true
	default:
		return false
	}
}

type CustomerSnapshot struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ProductSnapshot freezes a priced product at the time of sale.
type ProductSnapshot struct {
	ID             snowflake.ID                `json:"id"`
	Name           string                      `json:"name"`
	Slug           string                      `json:"slug"`
	SKU            string                      `json:"sku,omitempty"`
	Category       string                      `json:"category,omitempty"`
	Metals         []pricing.MetalComponent    `json:"metals"`
	Gemstones      []pricing.GemstoneComponent `json:"gemstones"`
	MakingCharges  pricing.Charge              `json:"making_charges"`
	ProductWastage pricing.Charge              `json:"product_wastage"`
	GSTPercentage  float64                     `json:"gst_percentage"`
	OtherCharges   []pricing.OtherCharge       `json:"other_charges"`
	Pricing        productdomain.Snapshot      `json:"pricing"`
	Version        int64                       `json:"version"`
}

type Item struct {
	ProductID       snowflake.ID    `json:"product_id"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       float64         `json:"unit_price"`
	LineTotal       float64         `json:"line_total"`
	ProductSnapshot ProductSnapshot `json:"product_snapshot"`
}

type Bill struct {
	ID          snowflake.ID                         `gorm:"primaryKey" json:"id"`
	BillNumber  string                               `gorm:"type:text;not null;uniqueIndex:ux_bills_number" json:"bill_number"`
	CustomerID  *snowflake.ID                        `gorm:"index" json:"customer_id,omitempty"`
	Customer    datatypes.JSONType[CustomerSnapshot] `gorm:"not null" json:"customer"`
	Items       datatypes.JSONSlice[Item]            `gorm:"not null" json:"items"`
	Subtotal    float64                              `gorm:"not null" json:"subtotal"`
	Discount    float64                              `gorm:"not null;default:0" json:"discount"`
	FinalAmount float64                              `gorm:"not null" json:"final_amount"`
	AmountPaid  float64                              `gorm:"not null;default:0" json:"amount_paid"`
	PaymentMode PaymentMode                          `gorm:"type:text;not null" json:"payment_mode"`
	Notes       string                               `gorm:"type:text" json:"notes,omitempty"`
	GeneratedBy string                               `gorm:"type:text" json:"generated_by,omitempty"`
	CreatedAt   time.Time                            `gorm:"not null" json:"created_at"`
}

func (Bill) TableName() string { return "bills" }

// Unpaid is the part of the bill carried as customer debt.
func (b *Bill) Unpaid() float64 {
	if b.FinalAmount <= b.AmountPaid {
		return 0
	}
	return b.FinalAmount - b.AmountPaid
}

// NewProductSnapshot copies p so later edits to the live product cannot leak into a bill.
func NewProductSnapshot(p *productdomain.Product) ProductSnapshot {
	in := p.PricingInput()
	return ProductSnapshot{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		SKU:            p.SKU,
		Category:       p.Category,
		Metals:         in.Metals,
		Gemstones:      in.Gemstones,
		MakingCharges:  in.MakingCharges,
		ProductWastage: in.ProductWastage,
		GSTPercentage:  in.GSTPercentage,
		OtherCharges:   in.OtherCharges,
		Pricing:        p.Snapshot(),
		Version:        p.Version,
	}
}
