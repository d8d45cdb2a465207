package pricing

import (
	"fmt"
	"math"
	"strings"
)

const (
	CodeNegative      = "negative_value"
	CodeInvalidNumber = "invalid_number"
	CodeChargeType    = "invalid_charge_type"
	CodeQuantity      = "invalid_quantity"
	CodeRequired      = "required"
)

// ValidationError points at the first offending input field.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

// Validate checks every field Calculate depends on without computing anything.
func Validate(in Input) error {
	for i, m := range in.Metals {
		prefix := fmt.Sprintf("metals[%d]", i)
		if strings.TrimSpace(m.MetalID) == "" {
			return &ValidationError{Field: prefix + ".metal_id", Code: CodeRequired}
		}
		if strings.TrimSpace(m.VariantID) == "" {
			return &ValidationError{Field: prefix + ".variant_id", Code: CodeRequired}
		}
		if err := checkAmount(prefix+".weight_in_grams", m.WeightInGrams); err != nil {
			return err
		}
		if err := checkAmount(prefix+".price_per_gram", m.PricePerGram); err != nil {
			return err
		}
		if err := checkCharge(prefix+".component_wastage", m.ComponentWastage); err != nil {
			return err
		}
	}

	for i, g := range in.Gemstones {
		prefix := fmt.Sprintf("gemstones[%d]", i)
		if strings.TrimSpace(g.GemstoneID) == "" {
			return &ValidationError{Field: prefix + ".gemstone_id", Code: CodeRequired}
		}
		if strings.TrimSpace(g.VariantID) == "" {
			return &ValidationError{Field: prefix + ".variant_id", Code: CodeRequired}
		}
		if err := checkAmount(prefix+".weight_in_carats", g.WeightInCarats); err != nil {
			return err
		}
		if g.Quantity < 1 {
			return &ValidationError{Field: prefix + ".quantity", Code: CodeQuantity}
		}
		if err := checkAmount(prefix+".price_per_carat", g.PricePerCarat); err != nil {
			return err
		}
		if err := checkCharge(prefix+".component_wastage", g.ComponentWastage); err != nil {
			return err
		}
	}

	if err := checkCharge("making_charges", in.MakingCharges); err != nil {
		return err
	}
	if err := checkCharge("product_wastage", in.ProductWastage); err != nil {
		return err
	}
	if err := checkAmount("gst_percentage", in.GSTPercentage); err != nil {
		return err
	}
	for i, oc := range in.OtherCharges {
		if err := checkAmount(fmt.Sprintf("other_charges[%d].amount", i), oc.Amount); err != nil {
			return err
		}
	}
	return nil
}

// checkCharge accepts an unset charge (no type, zero value) as no charge.
func checkCharge(field string, c Charge) error {
	switch c.Type {
	case ChargeFixed, ChargePercentage:
	case "":
		if c.Value == 0 {
			return nil
		}
		return &ValidationError{Field: field + ".type", Code: CodeChargeType}
	default:
		return &ValidationError{Field: field + ".type", Code: CodeChargeType}
	}
	return checkAmount(field+".value", c.Value)
}

func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Code: CodeInvalidNumber}
	}
	if v < 0 {
		return &ValidationError{Field: field, Code: CodeNegative}
	}
	return nil
}
