package model

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for a model, in USD per
// 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Published list prices; update as providers change them. Models missing
// from the table are recorded at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":                    {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":               {InputPer1M: 0.40, OutputPer1M: 1.60},
	"gpt-3.5-turbo":              {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-haiku-latest":    {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash":           {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-2.5-flash":           {InputPer1M: 0.30, OutputPer1M: 2.50},
}

// Call is one recorded model invocation.
type Call struct {
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// CostSummary is a point-in-time view of a CostTracker.
type CostSummary struct {
	Calls        int                `json:"calls"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	ByModel      map[string]float64 `json:"by_model"`
}

// CostTracker accumulates token usage and estimated spend across calls.
//
// Usage:
//
//	tracker := model.NewCostTracker()
//	m := model.Metered(openai.NewChatModel(key, "gpt-4o-mini"), "gpt-4o-mini", tracker)
//	...
//	fmt.Println(tracker)
//
// Safe for concurrent use.
type CostTracker struct {
	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []Call
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
	now          func() time.Time
}

// NewCostTracker creates a tracker with the default pricing table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for name, p := range defaultModelPricing {
		pricing[name] = p
	}
	return &CostTracker{
		pricing:    pricing,
		modelCosts: make(map[string]float64),
		now:        time.Now,
	}
}

// Record adds one call's usage and returns its estimated cost.
func (ct *CostTracker) Record(modelName string, usage Usage) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.pricing[modelName]
	cost := float64(usage.InputTokens)/1_000_000*pricing.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*pricing.OutputPer1M

	ct.calls = append(ct.calls, Call{
		Model:        modelName,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    ct.now(),
	})
	ct.totalCost += cost
	ct.modelCosts[modelName] += cost
	ct.inputTokens += int64(usage.InputTokens)
	ct.outputTokens += int64(usage.OutputTokens)
	return cost
}

// SetPricing overrides the price of one model, e.g. for a gateway with its
// own rates.
func (ct *CostTracker) SetPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Summary returns the totals so far.
func (ct *CostTracker) Summary() CostSummary {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	byModel := make(map[string]float64, len(ct.modelCosts))
	for name, cost := range ct.modelCosts {
		byModel[name] = cost
	}
	return CostSummary{
		Calls:        len(ct.calls),
		InputTokens:  ct.inputTokens,
		OutputTokens: ct.outputTokens,
		TotalCostUSD: ct.totalCost,
		ByModel:      byModel,
	}
}

// History returns a copy of the recorded calls, oldest first.
func (ct *CostTracker) History() []Call {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]Call(nil), ct.calls...)
}

// Reset clears recorded usage. Pricing is kept.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.calls = nil
	ct.totalCost = 0
	ct.modelCosts = make(map[string]float64)
	ct.inputTokens = 0
	ct.outputTokens = 0
}

// String returns a one-line summary.
func (ct *CostTracker) String() string {
	s := ct.Summary()
	return fmt.Sprintf("%d call(s), %d input / %d output tokens, ~$%.4f",
		s.Calls, s.InputTokens, s.OutputTokens, s.TotalCostUSD)
}

type metered struct {
	next      ChatModel
	modelName string
	tracker   *CostTracker
}

// Metered wraps m so every successful call is recorded on tracker under
// modelName.
func Metered(m ChatModel, modelName string, tracker *CostTracker) ChatModel {
	return &metered{next: m, modelName: modelName, tracker: tracker}
}

func (m *metered) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	out, err := m.next.Chat(ctx, messages)
	if err == nil {
		m.tracker.Record(m.modelName, out.Usage)
	}
	return out, err
}
