package ir

// Version constants for the query format and the tool.
const (
	// QueryFormatVersion is the version of the textual query syntax.
	QueryFormatVersion = "1"

	// Version is the kbquery release version.
	Version = "0.1.0"
)
