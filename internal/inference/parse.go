package inference

import (
	"strings"

	"symbiote/internal/solana"

	"github.com/tidwall/gjson"
)

// parseObject extracts the first JSON object from a completion. Models
// occasionally wrap output in prose or code fences; slicing from the first
// "{" to the last "}" recovers those cases. The zero Result makes every
// lookup miss, which leaves callers on their defaults.
func parseObject(raw string) gjson.Result {
	if r := gjson.Parse(raw); r.IsObject() {
		return r
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first >= 0 && last > first {
		if r := gjson.Parse(raw[first : last+1]); r.IsObject() {
			return r
		}
	}

	return gjson.Result{}
}

func stringField(obj gjson.Result, path, fallback string) string {
	if v := obj.Get(path); v.Exists() && v.String() != "" {
		return v.String()
	}
	return fallback
}

func parseTradeIntent(obj gjson.Result, path string) TradeIntent {
	intent := obj.Get(path)
	amount := intent.Get("amount_lamports_or_units")

	amountStr := "10000000"
	if amount.Exists() && amount.String() != "" {
		amountStr = amount.String()
	}

	return TradeIntent{
		Text:       stringField(intent, "text", "Rotate some risk into SOL."),
		InputMint:  stringField(intent, "input_mint", solana.SOLMint),
		OutputMint: stringField(intent, "output_mint", solana.USDCMint),
		Amount:     amountStr,
	}
}
