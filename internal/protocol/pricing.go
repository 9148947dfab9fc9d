package protocol

import "github.com/EchoBridge/echobridge/internal/config"

// PriceTable estimates request cost from token counts using per-model
// prices per million tokens. Models without an entry cost zero.
type PriceTable struct {
	models map[string]config.ModelPricing
}

// NewPriceTable builds a price table from the configured pricing map.
func NewPriceTable(models map[string]config.ModelPricing) *PriceTable {
	table := make(map[string]config.ModelPricing, len(models))
	for name, p := range models {
		table[name] = p
	}
	return &PriceTable{models: table}
}

// Cost returns the estimated USD cost for the given token counts.
func (t *PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	if t == nil {
		return 0
	}
	p, ok := t.models[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.InputPerMTok + float64(outputTokens)/1e6*p.OutputPerMTok
}
