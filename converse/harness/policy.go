package harness

import "time"

// Policy controls driver behavior for one conversation turn.
type Policy struct {
	MaxIterations       int           // ceiling on tool round-trips per RunTurn
	MaxToolCallsPerTurn int           // ceiling on tool uses in one assistant turn
	ToolTimeout         time.Duration // per-tool execution timeout
	MaxOutputBytes      int           // ceiling on terminal text size
	ParseTextToolCalls  bool          // recover tool calls embedded in plain text (local models)
}

// DefaultPolicy returns sensible defaults. Retry/backoff is deliberately
// absent: endpoint failures propagate and retry policy stays with the caller.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxIterations:       8,
		MaxToolCallsPerTurn: 16,
		ToolTimeout:         30 * time.Second,
		MaxOutputBytes:      1 << 20,
		ParseTextToolCalls:  false,
	}
}
