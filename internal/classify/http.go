package classify

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/httputil"
)

// HTTPClassifier posts each frame as a PNG to a model server and expects
// {"label": "A"} in reply.
type HTTPClassifier struct {
	URL    string
	Client httputil.Doer
}

// NewHTTPClassifier creates a classifier for the model server at url.
func NewHTTPClassifier(url string, client httputil.Doer) *HTTPClassifier {
	return &HTTPClassifier{URL: url, Client: client}
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify implements Classifier.
func (h *HTTPClassifier) Classify(ctx context.Context, f *camera.Frame) (Label, error) {
	if h.URL == "" || h.Client == nil {
		return Unknown, ErrUnavailable
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return Unknown, fmt.Errorf("failed to encode frame: %w", err)
	}

	var resp classifyResponse
	if err := httputil.PostJSON(ctx, h.Client, h.URL, "image/png", &buf, &resp); err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tracef("[Classifier] seq=%d label=%q confidence=%.2f", f.Seq, resp.Label, resp.Confidence)
	return ParseLabel(resp.Label), nil
}
