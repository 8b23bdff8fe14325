// Package pricing ranks provider offers for a number by a weighted blend of
// cost, stock and provider reliability.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// NeutralReliability is used when nothing is known about a provider.
const NeutralReliability = 0.5

// DefaultWeights is applied when all configured weights are zero.
var DefaultWeights = Weights{Cost: 0.5, Stock: 0.3, Rate: 0.2}

// Weights controls the contribution of each score component.
type Weights struct {
	Cost  float64 `json:"cost" toml:"cost"`
	Stock float64 `json:"stock" toml:"stock"`
	Rate  float64 `json:"rate" toml:"rate"`
}

// Option is one provider/operator offer for a service in a country.
type Option struct {
	Provider string          `json:"provider"`
	Country  string          `json:"country,omitempty"`
	Service  string          `json:"service,omitempty"`
	Operator string          `json:"operator,omitempty"`
	Cost     decimal.Decimal `json:"cost"`
	Count    int64           `json:"count"`

	// SuccessRate is a percentage in [0,100].
	SuccessRate *float64 `json:"success_rate,omitempty"`

	// Failure rates are percentages over rolling windows.
	FailureRate1d  *float64 `json:"failure_rate_1d,omitempty"`
	FailureRate3d  *float64 `json:"failure_rate_3d,omitempty"`
	FailureRate7d  *float64 `json:"failure_rate_7d,omitempty"`
	FailureRate30d *float64 `json:"failure_rate_30d,omitempty"`
}

// ScoredOption carries an option with its component and composite scores.
type ScoredOption struct {
	Option           Option  `json:"option"`
	CostScore        float64 `json:"cost_score"`
	StockScore       float64 `json:"stock_score"`
	ReliabilityScore float64 `json:"reliability_score"`
	Score            float64 `json:"score"`
}

// Optimizer scores options. It holds no mutable state and is safe for
// concurrent use.
type Optimizer struct {
	weights Weights
}

// NewOptimizer returns an optimizer whose weights are renormalized to sum
// to 1. Negative weights count as zero.
func NewOptimizer(w Weights) *Optimizer {
	w.Cost = nonNegative(w.Cost)
	w.Stock = nonNegative(w.Stock)
	w.Rate = nonNegative(w.Rate)

	total := w.Cost + w.Stock + w.Rate
	if total == 0 {
		w = DefaultWeights
		total = w.Cost + w.Stock + w.Rate
	}

	return &Optimizer{weights: Weights{
		Cost:  w.Cost / total,
		Stock: w.Stock / total,
		Rate:  w.Rate / total,
	}}
}

// Weights returns the normalized weights.
func (o *Optimizer) Weights() Weights {
	return o.weights
}

// ScoreOption scores option relative to the other options in its group.
// The group should include option itself.
func (o *Optimizer) ScoreOption(option Option, group []Option) ScoredOption {
	b := boundsOf(append([]Option{option}, group...))

	costScore := 1.0
	if !b.maxCost.Equal(b.minCost) {
		span := b.maxCost.Sub(b.minCost)
		costScore = 1 - option.Cost.Sub(b.minCost).Div(span).InexactFloat64()
	}

	stockScore := 1.0
	if b.maxCount != b.minCount {
		stockScore = float64(option.Count-b.minCount) / float64(b.maxCount-b.minCount)
	}

	reliability := ReliabilityScore(option)

	score := costScore*o.weights.Cost +
		stockScore*o.weights.Stock +
		reliability*o.weights.Rate

	return ScoredOption{
		Option:           option,
		CostScore:        costScore,
		StockScore:       stockScore,
		ReliabilityScore: reliability,
		Score:            clamp01(score),
	}
}

// RankOptions scores every option against the whole slice and returns them
// by descending score. Equal scores keep their input order.
func (o *Optimizer) RankOptions(options []Option) []ScoredOption {
	scored := make([]ScoredOption, 0, len(options))
	for _, opt := range options {
		scored = append(scored, o.ScoreOption(opt, options))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}

// SelectBestOption returns the top ranked option, or false for no options.
func (o *Optimizer) SelectBestOption(options []Option) (*ScoredOption, bool) {
	if len(options) == 0 {
		return nil, false
	}

	ranked := o.RankOptions(options)
	return &ranked[0], true
}

// ReliabilityScore maps the reliability data of an option to [0,1].
// A direct success rate wins; otherwise the longest failure window present
// is inverted.
func ReliabilityScore(option Option) float64 {
	if option.SuccessRate != nil {
		return clamp01(*option.SuccessRate / 100)
	}

	for _, rate := range []*float64{
		option.FailureRate30d,
		option.FailureRate7d,
		option.FailureRate3d,
		option.FailureRate1d,
	} {
		if rate != nil {
			return clamp01(1 - *rate/100)
		}
	}

	return NeutralReliability
}

type bounds struct {
	minCost, maxCost   decimal.Decimal
	minCount, maxCount int64
}

func boundsOf(options []Option) bounds {
	b := bounds{
		minCost:  options[0].Cost,
		maxCost:  options[0].Cost,
		minCount: options[0].Count,
		maxCount: options[0].Count,
	}

	for _, opt := range options[1:] {
		b.minCost = decimal.Min(b.minCost, opt.Cost)
		b.maxCost = decimal.Max(b.maxCost, opt.Cost)
		b.minCount = min(b.minCount, opt.Count)
		b.maxCount = max(b.maxCount, opt.Count)
	}

	return b
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func nonNegative(v float64) float64 {
	return max(v, 0)
}
