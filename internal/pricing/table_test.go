package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeTablePicksOneOperatorPerService(t *testing.T) {
	o := NewOptimizer(Weights{Cost: 0.5, Stock: 0.3, Rate: 0.2})
	table := Table{
		"de": {
			"telegram": {
				"vodafone": {Provider: "p1", Cost: decimal.NewFromInt(10), Count: 5},
				"telekom":  {Provider: "p2", Cost: decimal.NewFromInt(5), Count: 1},
			},
			"whatsapp": {
				"o2": {Provider: "p3", Cost: decimal.NewFromInt(7), Count: 3},
			},
		},
		"at": {
			"telegram": {
				"a1":    {Provider: "p4", Cost: decimal.NewFromInt(4), Count: 100, SuccessRate: pct(10)},
				"drei":  {Provider: "p5", Cost: decimal.NewFromInt(4), Count: 100, SuccessRate: pct(95)},
				"empty": {Provider: "p6", Cost: decimal.NewFromInt(4), Count: 100},
			},
		},
	}

	choices := o.OptimizeTable(table)
	require.Len(t, choices, 3)

	assert.Equal(t, "at", choices[0].Country)
	assert.Equal(t, "drei", choices[0].Operator)

	assert.Equal(t, "de", choices[1].Country)
	assert.Equal(t, "telegram", choices[1].Service)
	assert.Equal(t, "telekom", choices[1].Operator)
	assert.Equal(t, "de", choices[1].Best.Option.Country)

	assert.Equal(t, "whatsapp", choices[2].Service)
	assert.Equal(t, "o2", choices[2].Operator)

	collapsed := Collapse(choices)
	assert.Len(t, collapsed["de"]["telegram"], 1)
	assert.Contains(t, collapsed["de"]["telegram"], "telekom")
}

func TestOptimizeTableSkipsEmptyServices(t *testing.T) {
	o := NewOptimizer(DefaultWeights)
	choices := o.OptimizeTable(Table{"us": {"signal": {}}})
	assert.Empty(t, choices)
}
