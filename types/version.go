package types

// Version is the canonical project version.
// The CLI, the trace log format and the process-model frame protocol
// share this version.
const Version = "0.3.0"
