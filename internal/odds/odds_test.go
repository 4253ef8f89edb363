package odds

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Compute tests ---

func TestCompute_EvenPair(t *testing.T) {
	quotes := Compute([]int{50, 50}, d(0.05))
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	for i, q := range quotes {
		if !q.Probability.Equal(d(0.525)) {
			t.Errorf("quote %d: expected probability 0.525, got %s", i, q.Probability)
		}
		if !q.DecimalOdds.Equal(d(1.90)) {
			t.Errorf("quote %d: expected odds 1.90, got %s", i, q.DecimalOdds)
		}
	}
}

func TestCompute_FavoriteUnderdog(t *testing.T) {
	quotes := Compute([]int{90, 10}, d(0.05))

	if !quotes[0].Probability.Equal(d(0.945)) {
		t.Errorf("favorite: expected probability 0.945, got %s", quotes[0].Probability)
	}
	if !quotes[0].DecimalOdds.Equal(d(1.06)) {
		t.Errorf("favorite: expected odds 1.06, got %s", quotes[0].DecimalOdds)
	}
	if !quotes[1].Probability.Equal(d(0.105)) {
		t.Errorf("underdog: expected probability 0.105, got %s", quotes[1].Probability)
	}
	if !quotes[1].DecimalOdds.Equal(d(9.52)) {
		t.Errorf("underdog: expected odds 9.52, got %s", quotes[1].DecimalOdds)
	}
}

func TestCompute_ProbabilitiesSumToOnePlusMargin(t *testing.T) {
	margins := []float64{0, 0.02, 0.05, 0.10}
	vectors := [][]int{
		{50, 50},
		{90, 10},
		{1, 1, 1},
		{100, 60, 30, 10},
		{33, 33, 34},
	}

	for _, m := range margins {
		for _, ws := range vectors {
			quotes := Compute(ws, d(m))
			sum := decimal.Zero
			for _, q := range quotes {
				sum = sum.Add(q.Probability)
			}
			// Each probability is rounded to 6 places, so allow half a unit
			// in the last place per outcome.
			tolerance := d(0.0000005).Mul(decimal.NewFromInt(int64(len(ws))))
			if sum.Sub(d(1 + m)).Abs().GreaterThan(tolerance) {
				t.Errorf("weights %v margin %v: probabilities sum to %s, want ≈ %v",
					ws, m, sum, 1+m)
			}
		}
	}
}

func TestCompute_HigherWeightLowerOdds(t *testing.T) {
	quotes := Compute([]int{10, 20, 30, 40}, d(0.05))
	for i := 1; i < len(quotes); i++ {
		if quotes[i].DecimalOdds.GreaterThan(quotes[i-1].DecimalOdds) {
			t.Errorf("odds should not increase with weight: quote %d = %s > quote %d = %s",
				i, quotes[i].DecimalOdds, i-1, quotes[i-1].DecimalOdds)
		}
	}
}

func TestCompute_AllZeroWeightsFallBackToUniform(t *testing.T) {
	quotes := Compute([]int{0, 0, 0}, d(0.05))
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}
	for i := 1; i < len(quotes); i++ {
		if !quotes[i].Probability.Equal(quotes[0].Probability) {
			t.Errorf("uniform fallback: probability %d = %s, want %s",
				i, quotes[i].Probability, quotes[0].Probability)
		}
		if !quotes[i].DecimalOdds.Equal(quotes[0].DecimalOdds) {
			t.Errorf("uniform fallback: odds %d = %s, want %s",
				i, quotes[i].DecimalOdds, quotes[0].DecimalOdds)
		}
	}
	// 1/3 × 1.05 = 0.35 → odds 1/0.35 = 2.857… → 2.86
	if !quotes[0].DecimalOdds.Equal(d(2.86)) {
		t.Errorf("expected uniform odds 2.86, got %s", quotes[0].DecimalOdds)
	}
}

func TestCompute_NegativeWeightClampedToZero(t *testing.T) {
	a := Compute([]int{-5, 50}, d(0.05))
	b := Compute([]int{0, 50}, d(0.05))
	for i := range a {
		if !a[i].Probability.Equal(b[i].Probability) {
			t.Errorf("quote %d: negative weight should price like zero", i)
		}
	}
}

func TestCompute_SingleOutcome(t *testing.T) {
	quotes := Compute([]int{70}, d(0.05))
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if !quotes[0].Probability.Equal(d(1.05)) {
		t.Errorf("expected probability 1.05, got %s", quotes[0].Probability)
	}
}

func TestCompute_EmptyWeights(t *testing.T) {
	if quotes := Compute(nil, d(0.05)); quotes != nil {
		t.Errorf("expected nil for empty weights, got %v", quotes)
	}
}

func TestCompute_VanishingProbabilityGetsSentinel(t *testing.T) {
	// 1/3000001 rounds to 0.000000 at six places.
	quotes := Compute([]int{1, 3000000}, decimal.Zero)
	if !quotes[0].Probability.IsZero() {
		t.Fatalf("expected probability to round to zero, got %s", quotes[0].Probability)
	}
	if !quotes[0].DecimalOdds.Equal(SentinelOdds) {
		t.Errorf("expected sentinel odds %s, got %s", SentinelOdds, quotes[0].DecimalOdds)
	}
}

// --- Display compression tests ---

func TestDisplayOdds_NormalRoundingAtThreshold(t *testing.T) {
	if got := displayOdds(d(1.01)); !got.Equal(d(1.01)) {
		t.Errorf("raw 1.01 should round normally, got %s", got)
	}
	if got := displayOdds(d(1.9048)); !got.Equal(d(1.90)) {
		t.Errorf("raw 1.9048 should round to 1.90, got %s", got)
	}
	if got := displayOdds(d(1.055)); !got.Equal(d(1.06)) {
		t.Errorf("raw 1.055 should round half-up to 1.06, got %s", got)
	}
}

func TestDisplayOdds_CompressedBandBounds(t *testing.T) {
	raws := []float64{0.95, 1.0, 1.0001, 1.001, 1.005, 1.0099999}
	lo, hi := d(1.001), d(1.010)
	for _, raw := range raws {
		got := displayOdds(d(raw))
		if got.LessThan(lo) || got.GreaterThan(hi) {
			t.Errorf("raw %v: compressed odds %s outside [1.001, 1.010]", raw, got)
		}
	}
}

func TestDisplayOdds_JustBelowThresholdCompresses(t *testing.T) {
	got := displayOdds(d(1.0099999))
	if !got.Equal(d(1.010)) {
		t.Errorf("raw 1.0099999 should compress to the top of the band, got %s", got)
	}
}

func TestDisplayOdds_CompressionMonotonic(t *testing.T) {
	raws := []float64{1.0005, 1.002, 1.004, 1.006, 1.008, 1.0095}
	prev := decimal.Zero
	for _, raw := range raws {
		got := displayOdds(d(raw))
		if got.LessThan(prev) {
			t.Errorf("compression must be monotonic: raw %v → %s < previous %s", raw, got, prev)
		}
		prev = got
	}
}

func TestCompute_HeavyFavoriteCompressed(t *testing.T) {
	// 99/100 × 1.05 = 1.0395 implied → raw odds < 1 → compressed band.
	quotes := Compute([]int{99, 1}, d(0.05))
	fav := quotes[0].DecimalOdds
	if fav.LessThan(d(1.001)) || fav.GreaterThan(d(1.010)) {
		t.Errorf("heavy favorite odds %s should lie in [1.001, 1.010]", fav)
	}
	if !quotes[1].DecimalOdds.Equal(d(95.24)) {
		t.Errorf("underdog: expected odds 95.24, got %s", quotes[1].DecimalOdds)
	}
}
