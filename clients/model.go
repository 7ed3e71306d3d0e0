package clients

import "context"

// --- Event model (/classify) ---

// FeatureNames is the column order of ClassifyReq.Features.
var FeatureNames = []string{"energy", "peak", "centroid_hz", "flatness", "zcr"}

type ClassifyReq struct {
	Start        float64     `json:"start"`
	Duration     float64     `json:"duration"`
	PeakVolume   float64     `json:"peak_volume"`
	FeatureNames []string    `json:"feature_names"`
	Features     [][]float64 `json:"features"`
}

type ClassifyResp struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model,omitempty"`
}

func (h *HTTP) Classify(ctx context.Context, url string, req ClassifyReq) (*ClassifyResp, error) {
	var out ClassifyResp
	if err := h.postJSON(ctx, "classify", url+"/classify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
