package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Handler runs one raw command message and returns the encoded reply.
// command.Dispatcher implements it.
type Handler interface {
	Execute(ctx context.Context, message []byte) []byte
}

// reply is a decoded command reply.
type reply struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// Harness runs scenarios against a handler.
type Harness struct {
	handler Handler
	log     *zap.Logger
}

// New creates a harness.
func New(handler Handler, log *zap.Logger) *Harness {
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{handler: handler, log: log}
}

// Run executes the scenario's steps in order and checks every reply against
// its expect clause. Mismatches are reported in the result; the error is
// reserved for steps that could not be sent or replies that could not be
// decoded.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	log := h.log.With(zap.String("scenario", scenario.Name))

	for i, step := range scenario.Steps {
		n := i + 1
		params := parameters(step.Parameters, scenario.Database)

		message, err := json.Marshal(map[string]any{
			"name":       step.Command,
			"parameters": params,
		})
		if err != nil {
			return nil, fmt.Errorf("step %d: failed to encode command: %w", n, err)
		}

		var r reply
		if err := json.Unmarshal(h.handler.Execute(ctx, message), &r); err != nil {
			return nil, fmt.Errorf("step %d: failed to decode reply: %w", n, err)
		}

		result.Trace = append(result.Trace, TraceEvent{
			Step:       n,
			Command:    step.Command,
			Parameters: params,
			Type:       r.Type,
			Content:    r.Content,
		})

		if step.Expect != nil {
			if err := checkExpect(n, step, r); err != nil {
				result.AddError(err.Error())
			}
		}

		log.Debug("step completed",
			zap.Int("step", n),
			zap.String("command", step.Command),
			zap.String("type", r.Type),
		)
	}

	return result, nil
}

// Run executes a scenario with a harness that does not log.
func Run(ctx context.Context, handler Handler, scenario *Scenario) (*Result, error) {
	return New(handler, nil).Run(ctx, scenario)
}

// parameters copies params, adding the database when it is missing.
func parameters(params map[string]any, database string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if _, ok := out["database"]; !ok && database != "" {
		out["database"] = database
	}
	return out
}
