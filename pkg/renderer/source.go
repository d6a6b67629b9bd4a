package renderer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/blingblang/atlas-fluvial/pkg/request"
)

// MapSource is the capability the renderer requires from the external
// map provider: a raster image covering the given bounding box.
type MapSource interface {
	FetchMapImage(ctx context.Context, bounds orb.Bound, width, height int) ([]byte, error)
}

// StaticSource fetches rasters from a static-map render endpoint that
// accepts a bbox and output dimensions as query parameters.
type StaticSource struct {
	client  *request.Client
	baseURL string
}

// NewStaticSource creates a StaticSource against the given endpoint.
func NewStaticSource(client *request.Client, baseURL string) *StaticSource {
	return &StaticSource{client: client, baseURL: baseURL}
}

// FetchMapImage implements MapSource.
func (s *StaticSource) FetchMapImage(ctx context.Context, bounds orb.Bound, width, height int) ([]byte, error) {
	q := url.Values{}
	q.Set("bbox", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
		bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1]))
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("format", "png")

	return s.client.Get(ctx, s.baseURL+"?"+q.Encode(), nil)
}
