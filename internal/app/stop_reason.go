package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	// StopUnknown: the app context ended without a signal or an error.
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)
