package harness

import "fmt"

// ToolArgumentError reports a tool-use request whose arguments violate the
// registered schema, or that names an unregistered tool. It is recoverable:
// the dispatcher folds it into an error ToolResult so the model can
// self-correct on the next turn, and it never aborts the loop.
type ToolArgumentError struct {
	Tool   string
	Reason string
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Reason)
}

// IterationLimitError reports that a turn exceeded the configured ceiling on
// tool round-trips. Fatal: surfaced to the caller to stop runaway loops.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("tool round-trip limit of %d exceeded", e.Limit)
}
