// Package odds converts creator-chosen outcome weights into implied
// probabilities and quoted decimal odds.
//
// Weights are subjective relative likelihoods on a 0–100 slider, not
// calibrated probabilities. Normalization plus a margin (overround)
// produces implied probabilities that sum to 1 + margin — the house edge.
//
// All monetary and probability values use shopspring/decimal — never
// float64 for money. The display-compression curve uses float64
// transcendental math internally, with results immediately converted
// back to decimal.
package odds

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	// SentinelOdds is quoted when an implied probability rounds to zero,
	// instead of returning infinite odds or an error.
	SentinelOdds = decimal.New(999990, -3) // 999.990

	// compressionThreshold is the raw odds value below which the
	// logarithmic display compression applies.
	compressionThreshold = decimal.New(101, -2) // 1.01

	// minDisplayOdds is the floor of the compressed display band.
	minDisplayOdds = decimal.New(1001, -3) // 1.001

	one = decimal.NewFromInt(1)
)

// alpha controls the steepness of the compression curve.
const alpha = 3.0

// ProbabilityScale is the number of decimal places for implied probabilities.
const ProbabilityScale int32 = 6

// Quote is the derived pricing for one outcome.
type Quote struct {
	Probability decimal.Decimal `json:"probability"`  // implied, after overround
	DecimalOdds decimal.Decimal `json:"decimal_odds"` // display odds
}

// Compute derives a Quote per weight, in input order.
//
// Negative weights are clamped to zero. An all-zero weight vector falls
// back to uniform weights so no outcome divides by zero. Each implied
// probability is w_i/Σw scaled by (1 + margin) and rounded to six places;
// odds are 1/p' passed through display rounding. Higher weight always
// yields lower (or equal) odds.
//
// The caller guarantees weights are clamped to [0, 100] and that a market
// has at least two outcomes; this function does not enforce a minimum
// length.
func Compute(weights []int, margin decimal.Decimal) []Quote {
	if len(weights) == 0 {
		return nil
	}

	ws := make([]decimal.Decimal, len(weights))
	total := decimal.Zero
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		ws[i] = decimal.NewFromInt(int64(w))
		total = total.Add(ws[i])
	}

	// Uniform fallback: all-zero weights price every outcome equally.
	if total.IsZero() {
		for i := range ws {
			ws[i] = one
		}
		total = decimal.NewFromInt(int64(len(ws)))
	}

	overround := one.Add(margin)
	quotes := make([]Quote, len(ws))
	for i, w := range ws {
		pPrime := w.Div(total).Mul(overround).Round(ProbabilityScale)

		var o decimal.Decimal
		if pPrime.IsZero() {
			o = SentinelOdds
		} else {
			o = displayOdds(one.Div(pPrime))
		}
		quotes[i] = Quote{Probability: pPrime, DecimalOdds: o}
	}
	return quotes
}

// displayOdds rounds raw fair odds for display. Odds at or above 1.01
// round half-up to two places. Below that, heavy favorites would all
// collapse to "1.00", so the tail is compressed into the [1.001, 1.010]
// band with a logarithmic curve that keeps differently-weighted outcomes
// visibly distinct and strictly ordered.
func displayOdds(raw decimal.Decimal) decimal.Decimal {
	if raw.GreaterThanOrEqual(compressionThreshold) {
		return raw.Round(2)
	}

	r := raw
	if r.LessThan(minDisplayOdds) {
		r = minDisplayOdds
	}

	// Map distance above 1.000 into [0, 0.999999], then bend it:
	// y = log(1 + αx) / log(1 + α).
	x := r.Sub(one).InexactFloat64() / 0.01
	x = math.Min(math.Max(x, 0), 0.999999)
	y := math.Log1p(alpha*x) / math.Log1p(alpha)

	val := 1.001 + 0.009*y
	return decimal.NewFromFloat(val).Round(3)
}
