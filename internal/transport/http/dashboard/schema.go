package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// runRequest is the dashboard's backtest submission. Params is handed to the
// engine untouched.
type runRequest struct {
	Strategy    string          `json:"strategy"`
	StopLoss    float64         `json:"stop_loss"`
	TakeProfit  float64         `json:"take_profit"`
	Exchange    string          `json:"exchange"`
	Interval    string          `json:"interval"`
	Start       int64           `json:"start"`
	End         int64           `json:"end"`
	Symbols     []string        `json:"symbols"`
	ChartSymbol string          `json:"chart_symbol"`
	Params      json.RawMessage `json:"params"`
}

const runRequestSchema = `{
	"type": "object",
	"required": ["strategy", "interval", "start", "end", "symbols"],
	"properties": {
		"strategy":     {"type": "string", "minLength": 1},
		"stop_loss":    {"type": "number", "minimum": 0},
		"take_profit":  {"type": "number", "minimum": 0},
		"exchange":     {"type": "string"},
		"interval":     {"type": "string", "minLength": 1},
		"start":        {"type": "integer"},
		"end":          {"type": "integer"},
		"symbols":      {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
		"chart_symbol": {"type": "string"},
		"params":       {"type": "object"}
	}
}`

var compiledRunSchema = jsonschema.MustCompileString("runRequest.json", runRequestSchema)

func validateRunRequest(body []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}
	if err := compiledRunSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid backtest request: %w", err)
	}
	return nil
}
