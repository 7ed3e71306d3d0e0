package clients

import (
	"context"
	"time"
)

// --- Context sensors (/context) ---
type ContextReq struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Metrics []string  `json:"metrics,omitempty"`
}

// ContextResp maps metric name to its value over the requested period.
// Metrics the service has no data for are simply absent.
type ContextResp struct {
	Metrics map[string]float64 `json:"metrics"`
}

func (h *HTTP) Context(ctx context.Context, url string, req ContextReq) (*ContextResp, error) {
	var out ContextResp
	if err := h.postJSON(ctx, "context", url+"/context", req, &out); err != nil {
		return nil, err
	}
	if out.Metrics == nil {
		out.Metrics = map[string]float64{}
	}
	return &out, nil
}
