package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const controlTimeout = 5 * time.Second

// ControlClient drives the backend's demo control surface. Every request is
// fire-and-forget: a failure is logged and never surfaced as a call-state
// change.
type ControlClient struct {
	baseURL string
	client  *http.Client
}

// NewControlClient creates a client for the control API at baseURL.
func NewControlClient(baseURL string) *ControlClient {
	return &ControlClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: controlTimeout},
	}
}

// StartDemoCall asks the backend to simulate an inbound call. The resulting
// call arrives over the push channel like any other.
func (c *ControlClient) StartDemoCall(ctx context.Context) {
	c.post(ctx, c.baseURL+"/api/demo/call")
}

// EndCall asks the backend to terminate the call with the given id.
func (c *ControlClient) EndCall(ctx context.Context, callID string) {
	c.post(ctx, fmt.Sprintf("%s/api/demo/end/%s", c.baseURL, callID))
}

func (c *ControlClient) post(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		coreLog.Warnf("control request %s: %v", url, err)
		return
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	res, err := c.client.Do(req)
	if err != nil {
		coreLog.Warnf("control request %s: %v", url, err)
		return
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		coreLog.Warnf("control request %s: status %d", url, res.StatusCode)
	}
}
