// Package media owns the local audio rendering pipeline for the operator's
// phone. Exactly one Renderer exists per phone; it is re-bound for each
// session's negotiated remote endpoint and never shared between sessions.
package media

import "fmt"

// Endpoint is the remote RTP endpoint negotiated for a session.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Renderer renders a session's remote audio. Bind attaches the renderer to
// a session's endpoint, replacing any previous binding. Stop detaches and
// silences it; calling Stop with nothing bound, or twice, is a no-op.
type Renderer interface {
	Bind(remote Endpoint) error
	Stop()
	Close()
}

// NewRenderer creates the platform renderer.
func NewRenderer() Renderer {
	return newRenderer()
}

var logFn func(format string, args ...any)

// SetLogFunc routes the package's diagnostics to the application logger.
func SetLogFunc(fn func(format string, args ...any)) {
	logFn = fn
}

func logf(format string, args ...any) {
	if logFn != nil {
		logFn(format, args...)
	}
}
