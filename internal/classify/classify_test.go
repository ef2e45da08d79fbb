package classify

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/httputil"
)

type funcClassifier func(ctx context.Context, f *camera.Frame) (Label, error)

func (fn funcClassifier) Classify(ctx context.Context, f *camera.Frame) (Label, error) {
	return fn(ctx, f)
}

func TestParseLabel(t *testing.T) {
	tests := map[string]Label{
		"A": RouteA, "a": RouteA, "B": RouteB, "b": RouteB, "": Unknown, "C": Unknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLabel(in), "ParseLabel(%q)", in)
	}
}

func TestBounded_PassesLabel(t *testing.T) {
	b := WithTimeout(funcClassifier(func(context.Context, *camera.Frame) (Label, error) {
		return RouteB, nil
	}), time.Second)
	assert.Equal(t, RouteB, b.Label(context.Background(), camera.NewFrame(1, 1)))
}

func TestBounded_ErrorYieldsUnknown(t *testing.T) {
	b := WithTimeout(funcClassifier(func(context.Context, *camera.Frame) (Label, error) {
		return RouteA, errors.New("model crashed")
	}), time.Second)
	assert.Equal(t, Unknown, b.Label(context.Background(), camera.NewFrame(1, 1)))
}

func TestBounded_TimeoutYieldsUnknown(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	b := WithTimeout(funcClassifier(func(ctx context.Context, _ *camera.Frame) (Label, error) {
		<-release // ignores ctx on purpose
		return RouteA, nil
	}), 10*time.Millisecond)

	start := time.Now()
	assert.Equal(t, Unknown, b.Label(context.Background(), camera.NewFrame(1, 1)))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBounded_NilInner(t *testing.T) {
	var b *Bounded
	assert.Equal(t, Unknown, b.Label(context.Background(), camera.NewFrame(1, 1)))
	assert.Equal(t, Unknown, WithTimeout(nil, 0).Label(context.Background(), camera.NewFrame(1, 1)))
}

func TestHTTPClassifier(t *testing.T) {
	doer := httputil.NewMockDoer().Reply(http.StatusOK, `{"label":"A","confidence":0.91}`)
	c := NewHTTPClassifier("http://model/classify", doer)

	f := camera.NewFrame(4, 2)
	f.Set(1, 1, 255, 0, 0)
	label, err := c.Classify(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, RouteA, label)

	img, err := png.Decode(bytes.NewReader(doer.Body(0)))
	require.NoError(t, err, "request body should be a PNG")
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestHTTPClassifier_Unavailable(t *testing.T) {
	_, err := NewHTTPClassifier("", nil).Classify(context.Background(), camera.NewFrame(1, 1))
	assert.ErrorIs(t, err, ErrUnavailable)

	doer := httputil.NewMockDoer().Reply(http.StatusInternalServerError, "boom")
	_, err = NewHTTPClassifier("http://model", doer).Classify(context.Background(), camera.NewFrame(1, 1))
	assert.ErrorIs(t, err, ErrUnavailable)
}
