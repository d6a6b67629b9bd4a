package renderer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/geo"
	"github.com/blingblang/atlas-fluvial/pkg/model"
)

type fakeSource struct {
	calls int
	fetch func(ctx context.Context, bounds orb.Bound, width, height int) ([]byte, error)
}

func (f *fakeSource) FetchMapImage(ctx context.Context, bounds orb.Bound, width, height int) ([]byte, error) {
	f.calls++
	return f.fetch(ctx, bounds, width, height)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func testRequest() model.GenerationRequest {
	return model.GenerationRequest{
		Anchor:      geo.Point{Lat: 51.5074, Lon: -0.1278},
		Scale:       model.DefaultScale,
		PageSize:    model.PageA4,
		GeneratedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func testRenderer(src MapSource, retries int) *Renderer {
	return New(src, &config.MapConfig{
		RenderTimeout: config.Duration(100 * time.Millisecond),
	}, &config.RequestConfig{
		Retries: retries,
		Backoff: config.BackoffConfig{
			BaseDelay: config.Duration(time.Millisecond),
			MaxDelay:  config.Duration(5 * time.Millisecond),
		},
	})
}

func TestRenderer_Success(t *testing.T) {
	img := testPNG(t)
	req := testRequest()

	var gotBounds orb.Bound
	src := &fakeSource{fetch: func(_ context.Context, bounds orb.Bound, w, h int) ([]byte, error) {
		gotBounds = bounds
		assert.Positive(t, w)
		assert.Positive(t, h)
		return img, nil
	}}

	m, attempts, err := testRenderer(src, 3).Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, img, m.PNG)
	assert.False(t, m.CapturedAt.IsZero())

	want := geo.PageBounds(req.Anchor, req.Scale, req.PageSize.WidthMM, req.PageSize.HeightMM)
	assert.Equal(t, want, m.Bounds)
	assert.Equal(t, want, gotBounds)
}

func TestRenderer_TimeoutRetriesToCeiling(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, orb.Bound, int, int) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}

	_, attempts, err := testRenderer(src, 3).Render(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, src.calls)
}

func TestRenderer_UnavailableNotRetried(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, orb.Bound, int, int) ([]byte, error) {
		return nil, errors.New("connection refused")
	}}

	_, attempts, err := testRenderer(src, 3).Render(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, src.calls)
}

func TestRenderer_RejectsBadImages(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", []byte("not a png")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{fetch: func(context.Context, orb.Bound, int, int) ([]byte, error) {
				return tt.data, nil
			}}

			_, _, err := testRenderer(src, 3).Render(context.Background(), testRequest())
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestRenderer_ParentCancellation(t *testing.T) {
	src := &fakeSource{fetch: func(ctx context.Context, _ orb.Bound, _, _ int) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := testRenderer(src, 3).Render(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}
