package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/blingblang/atlas-fluvial/pkg/geo"
)

// PageSize is a physical page size in millimeters.
type PageSize struct {
	WidthMM  float64
	HeightMM float64
}

// PageA4 is the only page size the generator currently produces.
var PageA4 = PageSize{WidthMM: 210, HeightMM: 297}

// DefaultScale is the default map scale denominator (1:375,000).
const DefaultScale = 375000

// GenerationRequest is the immutable input of a single generation run.
// The scheduler constructs one per trigger; nothing mutates it afterwards.
type GenerationRequest struct {
	Anchor      geo.Point
	Scale       int
	PageSize    PageSize
	GeneratedAt time.Time
}

// Filename derives the artifact name for this request. It is a pure
// function of the anchor and the trigger timestamp, so two runs with
// distinct trigger times can never collide in the remote store.
func (r GenerationRequest) Filename() string {
	return fmt.Sprintf("atlas_%s_%s_%s.pdf",
		coordTag(r.Anchor.Lat, "N", "S"),
		coordTag(r.Anchor.Lon, "E", "W"),
		r.GeneratedAt.UTC().Format("20060102_150405"))
}

// coordTag renders a coordinate as a filename-safe token, e.g. 51.5074
// becomes "51-5074N".
func coordTag(deg float64, pos, neg string) string {
	hemi := pos
	if deg < 0 {
		hemi = neg
	}
	s := fmt.Sprintf("%.4f", math.Abs(deg))
	return strings.ReplaceAll(s, ".", "-") + hemi
}

// RenderedMap is the raster produced by the Map Renderer. It is owned
// by the in-flight run and handed to the composer, never retained.
type RenderedMap struct {
	PNG        []byte
	Bounds     orb.Bound
	CapturedAt time.Time
}

// ComposedArtifact is the finished document before upload.
type ComposedArtifact struct {
	PDF       []byte
	PageCount int
}

// Summary returns what the coordinator may keep for logging after the
// bytes have been handed to the publisher.
func (a *ComposedArtifact) Summary() ArtifactSummary {
	sum := sha1.Sum(a.PDF)
	return ArtifactSummary{
		SizeBytes: int64(len(a.PDF)),
		SHA1:      hex.EncodeToString(sum[:]),
		PageCount: a.PageCount,
	}
}

// ArtifactSummary is the size/checksum record of a composed document.
type ArtifactSummary struct {
	SizeBytes int64
	SHA1      string
	PageCount int
}

// PublishedArtifact records a successful publish.
type PublishedArtifact struct {
	URL         string
	Filename    string
	SizeBytes   int64
	PublishedAt time.Time
}
