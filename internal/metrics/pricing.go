package metrics

import "github.com/fixbench/runner/internal/domain"

// Pricing is USD per million tokens for one model.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// pricingTable is the fixed table used to estimate run cost. Unknown models
// fall back to defaultPricing so the estimate stays monotonically
// non-decreasing in total tokens either way.
var pricingTable = map[string]Pricing{
	"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"claude-3-5-sonnet-20240620": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-sonnet-20240229":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-opus-20240229":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
}

var defaultPricing = Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00}

// priceFor returns the pricing row for a model.
func priceFor(model string) Pricing {
	if p, ok := pricingTable[model]; ok {
		return p
	}
	return defaultPricing
}

// responseCost prices one model response. Tool-output tokens are priced at
// the input rate since they re-enter the context as input.
func responseCost(model string, usage domain.Usage) float64 {
	p := priceFor(model)
	return float64(usage.InputTokens)*p.InputPerMTok/1e6 +
		float64(usage.OutputTokens)*p.OutputPerMTok/1e6
}

func toolTokenCost(model string, tokens int) float64 {
	return float64(tokens) * priceFor(model).InputPerMTok / 1e6
}
