package ir

// Version constants for the program format and the engine.
const (
	// FormatVersion is the version of the program document format read by
	// package loader and written by EncodeTerm.
	FormatVersion = "1"

	// EngineVersion is the deduce engine version.
	EngineVersion = "0.1.0"
)
