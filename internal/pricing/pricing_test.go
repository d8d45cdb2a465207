package pricing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldRing() Input {
	return Input{
		Metals: []MetalComponent{{
			MetalID:          "gold",
			VariantID:        "22k",
			VariantName:      "22K",
			WeightInGrams:    4.5,
			PricePerGram:     6200,
			Subtotal:         999999,
			ComponentWastage: Charge{Type: ChargePercentage, Value: 8},
		}},
		Gemstones: []GemstoneComponent{{
			GemstoneID:       "diamond",
			VariantID:        "vvs1",
			VariantName:      "VVS1",
			WeightInCarats:   0.25,
			Quantity:         3,
			PricePerCarat:    85000,
			ComponentWastage: Charge{Type: ChargeFixed, Value: 150},
		}},
		MakingCharges:  Charge{Type: ChargePercentage, Value: 12},
		ProductWastage: Charge{Type: ChargeFixed, Value: 500},
		GSTPercentage:  3,
		OtherCharges:   []OtherCharge{{Name: "engraving", Amount: 250}, {Name: "hallmark", Amount: 45}},
	}
}

func TestCalculateBreakdown(t *testing.T) {
	res, err := Calculate(goldRing())
	require.NoError(t, err)

	metalSubtotal := 4.5 * 6200.0
	gemSubtotal := 0.25 * 85000.0 * 3
	assert.Equal(t, metalSubtotal, res.Metals[0].Subtotal, "client subtotal is overwritten")
	assert.Equal(t, gemSubtotal, res.Gemstones[0].Subtotal)

	assert.Equal(t, metalSubtotal+metalSubtotal*8/100, res.MetalTotal)
	assert.Equal(t, gemSubtotal+150, res.GemstoneTotal)

	material := res.MetalTotal + res.GemstoneTotal
	assert.Equal(t, material*12/100, res.MakingChargeAmount)
	assert.Equal(t, 500.0, res.WastageChargeAmount)
	assert.Equal(t, 295.0, res.OtherChargesTotal)
	assert.Equal(t, res.Subtotal*3/100, res.GSTAmount)
}

func TestCalculateDeterministic(t *testing.T) {
	in := goldRing()
	first, err := Calculate(in)
	require.NoError(t, err)
	second, err := Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalculateDoesNotMutateInput(t *testing.T) {
	in := goldRing()
	_, err := Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, 999999.0, in.Metals[0].Subtotal)
}

func TestPercentageMakingChargeUsesMaterialTotal(t *testing.T) {
	res, err := Calculate(Input{
		Metals:        []MetalComponent{{MetalID: "gold", VariantID: "24k", WeightInGrams: 1, PricePerGram: 1000}},
		MakingCharges: Charge{Type: ChargePercentage, Value: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.MaterialTotal())
	assert.Equal(t, 100.0, res.MakingChargeAmount)
}

func TestFixedChargesIgnoreBase(t *testing.T) {
	res, err := Calculate(Input{
		Metals:         []MetalComponent{{MetalID: "silver", VariantID: "925", WeightInGrams: 10, PricePerGram: 90}},
		MakingCharges:  Charge{Type: ChargeFixed, Value: 400},
		ProductWastage: Charge{Type: ChargePercentage, Value: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 400.0, res.MakingChargeAmount)
	assert.Equal(t, 45.0, res.WastageChargeAmount)
	assert.Equal(t, 900.0+400+45, res.TotalPrice)
}

func TestEmptyComposition(t *testing.T) {
	res, err := Calculate(Input{OtherCharges: []OtherCharge{{Name: "box", Amount: 100}}, GSTPercentage: 18})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Subtotal)
	assert.Equal(t, 118.0, res.TotalPrice)
	assert.Empty(t, res.Metals)
}

func TestAdditivityAndNonNegativity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	charge := func() Charge {
		if rng.Intn(2) == 0 {
			return Charge{Type: ChargeFixed, Value: rng.Float64() * 1000}
		}
		return Charge{Type: ChargePercentage, Value: rng.Float64() * 30}
	}

	for i := 0; i < 500; i++ {
		in := Input{
			MakingCharges:  charge(),
			ProductWastage: charge(),
			GSTPercentage:  rng.Float64() * 28,
		}
		for j := 0; j < rng.Intn(4); j++ {
			in.Metals = append(in.Metals, MetalComponent{
				MetalID:          "m",
				VariantID:        "v",
				WeightInGrams:    rng.Float64() * 50,
				PricePerGram:     rng.Float64() * 8000,
				ComponentWastage: charge(),
			})
		}
		for j := 0; j < rng.Intn(4); j++ {
			in.Gemstones = append(in.Gemstones, GemstoneComponent{
				GemstoneID:       "g",
				VariantID:        "v",
				WeightInCarats:   rng.Float64() * 3,
				Quantity:         1 + rng.Intn(12),
				PricePerCarat:    rng.Float64() * 100000,
				ComponentWastage: charge(),
			})
		}
		for j := 0; j < rng.Intn(3); j++ {
			in.OtherCharges = append(in.OtherCharges, OtherCharge{Name: "x", Amount: rng.Float64() * 500})
		}

		res, err := Calculate(in)
		require.NoError(t, err)

		for _, v := range []float64{
			res.MetalTotal, res.GemstoneTotal, res.MakingChargeAmount, res.WastageChargeAmount,
			res.OtherChargesTotal, res.Subtotal, res.GSTAmount, res.TotalPrice,
		} {
			assert.GreaterOrEqual(t, v, 0.0)
		}
		assert.Equal(t, res.MetalTotal+res.GemstoneTotal+res.MakingChargeAmount+res.WastageChargeAmount+res.OtherChargesTotal, res.Subtotal)
		assert.Equal(t, res.Subtotal+res.GSTAmount, res.TotalPrice)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		in    Input
		field string
		code  string
	}{
		{
			name:  "negative weight",
			in:    Input{Metals: []MetalComponent{{MetalID: "g", VariantID: "v", WeightInGrams: -1}}},
			field: "metals[0].weight_in_grams",
			code:  CodeNegative,
		},
		{
			name:  "missing variant",
			in:    Input{Metals: []MetalComponent{{MetalID: "g", WeightInGrams: 1}}},
			field: "metals[0].variant_id",
			code:  CodeRequired,
		},
		{
			name:  "zero quantity",
			in:    Input{Gemstones: []GemstoneComponent{{GemstoneID: "d", VariantID: "v", WeightInCarats: 1}}},
			field: "gemstones[0].quantity",
			code:  CodeQuantity,
		},
		{
			name:  "unknown charge type",
			in:    Input{MakingCharges: Charge{Type: "flat", Value: 5}},
			field: "making_charges.type",
			code:  CodeChargeType,
		},
		{
			name:  "untyped non-zero charge",
			in:    Input{ProductWastage: Charge{Value: 5}},
			field: "product_wastage.type",
			code:  CodeChargeType,
		},
		{
			name:  "negative gst",
			in:    Input{GSTPercentage: -3},
			field: "gst_percentage",
			code:  CodeNegative,
		},
		{
			name:  "negative other charge",
			in:    Input{OtherCharges: []OtherCharge{{Name: "x", Amount: -1}}},
			field: "other_charges[0].amount",
			code:  CodeNegative,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, tc.code, verr.Code)
		})
	}
}

func TestUnsetChargesAreNoCharge(t *testing.T) {
	in := Input{
		Metals: []MetalComponent{{MetalID: "g", VariantID: "22k", WeightInGrams: 2, PricePerGram: 100}},
	}
	require.NoError(t, Validate(in))
	res, err := Calculate(in)
	require.NoError(t, err)
	assert.Zero(t, res.MakingChargeAmount)
	assert.Zero(t, res.WastageChargeAmount)
	assert.Equal(t, 200.0, res.Subtotal)
}
