package llm

// Per-token prices in USD per million tokens, input and output.
// Unknown models cost zero rather than failing the request.
type modelPrice struct {
	input  float64
	output float64
}

var priceTable = map[string]modelPrice{
	"gpt-4o":                            {2.50, 10.00},
	"gpt-4o-mini":                       {0.15, 0.60},
	"gpt-4.1":                           {2.00, 8.00},
	"gpt-4.1-mini":                      {0.40, 1.60},
	"gpt-4.1-nano":                      {0.10, 0.40},
	"o3":                                {2.00, 8.00},
	"o3-mini":                           {1.10, 4.40},
	"o4-mini":                           {1.10, 4.40},
	"gemini-2.0-flash":                  {0.10, 0.40},
	"gemini-1.5-pro":                    {1.25, 5.00},
	"gemini-1.5-flash":                  {0.075, 0.30},
	"anthropic/claude-sonnet-4":         {3.00, 15.00},
	"anthropic/claude-3.5-haiku":        {0.80, 4.00},
	"meta-llama/llama-3.3-70b-instruct": {0.12, 0.30},
	"deepseek/deepseek-chat-v3":         {0.27, 1.10},
	"google/gemini-2.5-flash":           {0.30, 2.50},
}

// Cost prices a completed call. A provider-computed cost wins over the
// table; reasoning tokens bill at the output rate, which the reported
// completion count already includes.
func Cost(model string, usage Usage) float64 {
	if usage.CostKnown {
		return usage.CostUSD
	}
	price, ok := priceTable[model]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1e6*price.input +
		float64(usage.CompletionTokens)/1e6*price.output
}
