// Package pricing turns a product's material composition and charge
// configuration into an itemized price breakdown.
//
// Calculate is pure. It performs no I/O, keeps full float64 precision in
// every intermediate value and never rounds; rounding belongs to the
// presentation layer.
package pricing

type ChargeType string

const (
	ChargeFixed      ChargeType = "fixed"
	ChargePercentage ChargeType = "percentage"
)

// Charge is either an absolute currency amount or a percentage of a base.
type Charge struct {
	Type  ChargeType `json:"type"`
	Value float64    `json:"value"`
}

// Amount resolves the charge against base. A zero-valued charge yields 0.
func (c Charge) Amount(base float64) float64 {
	switch c.Type {
	case ChargeFixed:
		return c.Value
	case ChargePercentage:
		return base * c.Value / 100
	default:
		return 0
	}
}

type MetalComponent struct {
	MetalID          string  `json:"metal_id"`
	VariantID        string  `json:"variant_id"`
	VariantName      string  `json:"variant_name"`
	WeightInGrams    float64 `json:"weight_in_grams"`
	PricePerGram     float64 `json:"price_per_gram"`
	Subtotal         float64 `json:"subtotal"`
	ComponentWastage Charge  `json:"component_wastage"`
}

type GemstoneComponent struct {
	GemstoneID       string  `json:"gemstone_id"`
	VariantID        string  `json:"variant_id"`
	VariantName      string  `json:"variant_name"`
	WeightInCarats   float64 `json:"weight_in_carats"`
	Quantity         int     `json:"quantity"`
	PricePerCarat    float64 `json:"price_per_carat"`
	Subtotal         float64 `json:"subtotal"`
	ComponentWastage Charge  `json:"component_wastage"`
}

type OtherCharge struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Input carries everything the engine needs. PricePerGram and PricePerCarat
// must already hold the current catalog rates; Subtotal fields are ignored.
type Input struct {
	Metals         []MetalComponent
	Gemstones      []GemstoneComponent
	MakingCharges  Charge
	ProductWastage Charge
	GSTPercentage  float64
	OtherCharges   []OtherCharge
}

type Result struct {
	Metals              []MetalComponent    `json:"metals"`
	Gemstones           []GemstoneComponent `json:"gemstones"`
	MetalTotal          float64             `json:"metal_total"`
	GemstoneTotal       float64             `json:"gemstone_total"`
	MakingChargeAmount  float64             `json:"making_charge_amount"`
	WastageChargeAmount float64             `json:"wastage_charge_amount"`
	OtherChargesTotal   float64             `json:"other_charges_total"`
	Subtotal            float64             `json:"subtotal"`
	GSTAmount           float64             `json:"gst_amount"`
	TotalPrice          float64             `json:"total_price"`
}

// MaterialTotal is the base that percentage making and product wastage charges apply to.
func (r Result) MaterialTotal() float64 {
	return r.MetalTotal + r.GemstoneTotal
}

// Calculate validates in and runs the pricing pipeline over it.
// The returned component slices are copies with Subtotal filled in.
func Calculate(in Input) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}

	res := Result{
		Metals:    make([]MetalComponent, len(in.Metals)),
		Gemstones: make([]GemstoneComponent, len(in.Gemstones)),
	}

	for i, m := range in.Metals {
		m.Subtotal = m.WeightInGrams * m.PricePerGram
		res.Metals[i] = m
		res.MetalTotal += m.Subtotal + m.ComponentWastage.Amount(m.Subtotal)
	}
	for i, g := range in.Gemstones {
		g.Subtotal = g.WeightInCarats * g.PricePerCarat * float64(g.Quantity)
		res.Gemstones[i] = g
		res.GemstoneTotal += g.Subtotal + g.ComponentWastage.Amount(g.Subtotal)
	}

	material := res.MaterialTotal()
	res.MakingChargeAmount = in.MakingCharges.Amount(material)
	res.WastageChargeAmount = in.ProductWastage.Amount(material)
	for _, oc := range in.OtherCharges {
		res.OtherChargesTotal += oc.Amount
	}

	res.Subtotal = material + res.MakingChargeAmount + res.WastageChargeAmount + res.OtherChargesTotal
	res.GSTAmount = res.Subtotal * in.GSTPercentage / 100
	res.TotalPrice = res.Subtotal + res.GSTAmount
	return res, nil
}
