// Package classify defines the optional route classifier collaborator.
package classify

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/lanepilot/internal/camera"
)

// ErrUnavailable is returned when no classifier is configured or the remote
// model cannot answer.
var ErrUnavailable = errors.New("classify: classifier unavailable")

// Label is a route label. The zero value is not a valid label; use Unknown.
type Label string

const (
	Unknown Label = "unknown"
	RouteA  Label = "A"
	RouteB  Label = "B"
)

// ParseLabel maps a model response onto a Label. Anything unrecognised is
// Unknown.
func ParseLabel(s string) Label {
	switch s {
	case "A", "a":
		return RouteA
	case "B", "b":
		return RouteB
	default:
		return Unknown
	}
}

// Classifier labels a frame.
type Classifier interface {
	Classify(ctx context.Context, f *camera.Frame) (Label, error)
}

// Bounded wraps a Classifier with a per-call timeout. Failures and timeouts
// yield Unknown.
type Bounded struct {
	inner   Classifier
	timeout time.Duration
}

// WithTimeout wraps c. A nil c always yields Unknown.
func WithTimeout(c Classifier, timeout time.Duration) *Bounded {
	return &Bounded{inner: c, timeout: timeout}
}

// Label classifies f, failing open to Unknown.
func (b *Bounded) Label(ctx context.Context, f *camera.Frame) Label {
	if b == nil || b.inner == nil {
		return Unknown
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	type result struct {
		label Label
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		l, err := b.inner.Classify(ctx, f)
		ch <- result{l, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			diagf("[Classifier] seq=%d failed: %v", f.Seq, r.err)
			return Unknown
		}
		return r.label
	case <-ctx.Done():
		diagf("[Classifier] seq=%d timed out after %v", f.Seq, b.timeout)
		return Unknown
	}
}
