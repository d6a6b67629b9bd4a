package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/geo"
	"github.com/blingblang/atlas-fluvial/pkg/model"
	"github.com/blingblang/atlas-fluvial/pkg/request"
)

var (
	// ErrUnavailable indicates the map provider is unreachable or
	// returned no usable image for the region.
	ErrUnavailable = errors.New("map provider unavailable")

	// ErrTimeout indicates rendering exceeded its wall-clock budget.
	ErrTimeout = errors.New("map render exceeded time budget")
)

// Target raster density. Matches the print quality of the composed page.
const renderDPI = 300

// Renderer produces a RenderedMap for the page-sized region south and
// east of the request anchor. Timeouts are retried up to the configured
// attempt ceiling; any other provider failure surfaces immediately.
type Renderer struct {
	source      MapSource
	timeout     time.Duration
	maxAttempts int
	backoff     request.Backoff
}

// New creates a Renderer over the given map source.
func New(source MapSource, mapCfg *config.MapConfig, reqCfg *config.RequestConfig) *Renderer {
	return &Renderer{
		source:      source,
		timeout:     time.Duration(mapCfg.RenderTimeout),
		maxAttempts: reqCfg.Retries,
		backoff: request.Backoff{
			BaseDelay: time.Duration(reqCfg.Backoff.BaseDelay),
			MaxDelay:  time.Duration(reqCfg.Backoff.MaxDelay),
		},
	}
}

// Render fetches the map raster for the request. It returns the number
// of attempts made alongside the result or error.
func (r *Renderer) Render(ctx context.Context, req model.GenerationRequest) (*model.RenderedMap, int, error) {
	bounds := geo.PageBounds(req.Anchor, req.Scale, req.PageSize.WidthMM, req.PageSize.HeightMM)
	width := pixels(req.PageSize.WidthMM)
	height := pixels(req.PageSize.HeightMM)

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		data, err := r.source.FetchMapImage(attemptCtx, bounds, width, height)
		cancel()

		if err == nil {
			if verr := validateImage(data); verr != nil {
				return nil, attempt, fmt.Errorf("%w: %v", ErrUnavailable, verr)
			}
			return &model.RenderedMap{
				PNG:        data,
				Bounds:     bounds,
				CapturedAt: time.Now().UTC(),
			}, attempt, nil
		}

		// The parent context going away is a cancellation, not a
		// provider failure; surface it untouched.
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		if !isTimeout(err) {
			return nil, attempt, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if attempt >= r.maxAttempts {
			return nil, attempt, fmt.Errorf("%w after %d attempts: %v", ErrTimeout, attempt, err)
		}

		slog.Warn("Render attempt timed out, retrying", "attempt", attempt, "budget", r.timeout)
		if serr := r.backoff.Sleep(ctx, attempt); serr != nil {
			return nil, attempt, serr
		}
	}
}

// validateImage rejects empty or truncated rasters. The contract is all
// or nothing: a corrupt image must never reach the composer.
func validateImage(data []byte) error {
	if len(data) == 0 {
		return errors.New("provider returned an empty image")
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("provider returned an undecodable image: %v", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func pixels(mm float64) int {
	return int(mm / 25.4 * renderDPI)
}
