package ports

// ErrorReporter receives failures from best-effort paths that are never
// returned to a caller (volume persistence, audio output failures).
//
// Implementations must be thread-safe.
type ErrorReporter interface {
	Report(err error)
}

// ErrorReporterFunc adapts a plain function to ErrorReporter.
type ErrorReporterFunc func(err error)

// Report calls f(err).
func (f ErrorReporterFunc) Report(err error) {
	f(err)
}
