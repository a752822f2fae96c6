package cost

import (
	"math"

	"github.com/sells-group/qualify-cli/internal/model"
)

// Price holds per-model token pricing (USD per million tokens).
type Price struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculate returns the USD cost of a call. The result is not rounded.
func Calculate(tokensIn, tokensOut int, p Price) float64 {
	inCost := (float64(tokensIn) / 1e6) * p.Input
	outCost := (float64(tokensOut) / 1e6) * p.Output
	return inCost + outCost
}

// CreditPolicy converts actual provider spend into a user-facing charge.
type CreditPolicy struct {
	BaseFees      map[model.Depth]float64
	Margin        float64
	MinimumCharge float64
	TokenCap      int
}

// DefaultCreditPolicy returns the standard credit pricing.
func DefaultCreditPolicy() CreditPolicy {
	return CreditPolicy{
		BaseFees: map[model.Depth]float64{
			model.DepthLight:    0.5,
			model.DepthDeep:     1.5,
			model.DepthExtended: 3.0,
		},
		Margin:        0.3,
		MinimumCharge: 0.1,
		TokenCap:      50000,
	}
}

// Credits computes the charge for one analysis. Once tokensUsed exceeds the
// cap the charge is base fee * 1.5 regardless of actual cost; otherwise it
// is max(base + actual*(1+margin), minimum). Rounded to cents.
func (p CreditPolicy) Credits(depth model.Depth, actualCost float64, tokensUsed int) float64 {
	base := p.BaseFees[depth]

	var charge float64
	if tokensUsed > p.TokenCap {
		charge = base * 1.5
	} else {
		charge = math.Max(base+actualCost*(1+p.Margin), p.MinimumCharge)
	}
	return math.Round(charge*100) / 100
}

// Summary accumulates token and USD totals across calls.
type Summary struct {
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	USD       float64 `json:"actual_usd"`
}

// Add records one call.
func (s *Summary) Add(tokensIn, tokensOut int, usd float64) {
	s.TokensIn += tokensIn
	s.TokensOut += tokensOut
	s.USD += usd
}

// Tokens returns the total tokens used.
func (s Summary) Tokens() int { return s.TokensIn + s.TokensOut }
