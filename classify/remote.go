package classify

import (
	"context"

	"github.com/maastricht-university/sleepsense/clients"
	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/features"
)

// ModelClient is the part of clients.HTTP the remote classifier needs.
type ModelClient interface {
	Classify(ctx context.Context, url string, req clients.ClassifyReq) (*clients.ClassifyResp, error)
}

// Remote delegates classification to a trained model behind an HTTP
// endpoint. Categories the model invents map to other_sound with zero
// confidence.
type Remote struct {
	client ModelClient
	url    string
}

func NewRemote(client ModelClient, url string) *Remote {
	return &Remote{client: client, url: url}
}

func (r *Remote) Classify(ctx context.Context, ev event.Event, trace []features.Vector) (event.Category, float64, error) {
	rows := make([][]float64, len(trace))
	for i, v := range trace {
		rows[i] = []float64{v.Energy, v.Peak, v.Centroid, v.Flatness, v.ZCR}
	}
	resp, err := r.client.Classify(ctx, r.url, clients.ClassifyReq{
		Start:        ev.Start,
		Duration:     ev.Duration,
		PeakVolume:   ev.PeakVolume,
		FeatureNames: clients.FeatureNames,
		Features:     rows,
	})
	if err != nil {
		return event.Unclassified, 0, errs.ExternalService("model", err)
	}
	cat, err := event.ParseCategory(resp.Category)
	if err != nil {
		return event.OtherSound, 0, nil
	}
	return cat, resp.Confidence, nil
}
