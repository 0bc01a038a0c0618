package ir

// Version constants for the result format and engine.
const (
	// IRVersion is the result table format version.
	IRVersion = "1"

	// EngineVersion is the dynq engine version.
	EngineVersion = "0.1.0"
)
