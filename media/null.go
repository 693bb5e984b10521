package media

import "sync"

// nullRenderer tracks bindings without producing sound. It stands in on
// hosts without an audio backend and in tests; the binding discipline
// (exclusive ownership, stop-before-notify) is identical to a real output.
type nullRenderer struct {
	mu    sync.Mutex
	bound bool
}

func newRenderer() Renderer { return &nullRenderer{} }

func (r *nullRenderer) Bind(remote Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound {
		logf("rebinding audio renderer to %s", remote)
	} else {
		logf("binding audio renderer to %s", remote)
	}
	r.bound = true
	return nil
}

func (r *nullRenderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.bound {
		return
	}
	r.bound = false
	logf("audio renderer stopped")
}

func (r *nullRenderer) Close() {
	r.Stop()
}
