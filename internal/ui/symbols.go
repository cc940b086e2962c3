package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Host succeeded
	SymbolFail     = "✗" // Host failed or could not be spawned
	SymbolPending  = "○" // Host not yet started
	SymbolProgress = "◐" // Host running
	SymbolComplete = "●" // Totals line marker
	SymbolTimeout  = "⊘" // Host timed out or was signaled
)
