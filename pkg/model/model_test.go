package model

import (
	"strings"
	"testing"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/geo"
)

func TestGenerationRequest_Filename(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	req := GenerationRequest{
		Anchor:      geo.Point{Lat: 51.5074, Lon: -0.1278},
		Scale:       DefaultScale,
		PageSize:    PageA4,
		GeneratedAt: at,
	}

	got := req.Filename()
	want := "atlas_51-5074N_0-1278W_20260830_120000.pdf"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestGenerationRequest_Filename_NoCollisions(t *testing.T) {
	anchor := geo.Point{Lat: 47.2184, Lon: -1.5536}
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	a := GenerationRequest{Anchor: anchor, GeneratedAt: base}
	b := GenerationRequest{Anchor: anchor, GeneratedAt: base.Add(time.Second)}

	if a.Filename() == b.Filename() {
		t.Errorf("distinct generatedAt produced colliding filename %q", a.Filename())
	}

	// Pure function: same inputs, same name.
	if a.Filename() != a.Filename() {
		t.Error("Filename() is not deterministic")
	}
}

func TestGenerationRequest_Filename_Hemispheres(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		anchor geo.Point
		wants  []string
	}{
		{"NE", geo.Point{Lat: 51.5, Lon: 0.13}, []string{"N", "E"}},
		{"SW", geo.Point{Lat: -33.8688, Lon: -70.6693}, []string{"S", "W"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerationRequest{Anchor: tt.anchor, GeneratedAt: at}.Filename()
			for _, w := range tt.wants {
				if !strings.Contains(got, w) {
					t.Errorf("Filename() = %q, missing hemisphere tag %q", got, w)
				}
			}
		})
	}
}

func TestComposedArtifact_Summary(t *testing.T) {
	a := &ComposedArtifact{PDF: []byte("%PDF-1.4 test"), PageCount: 2}

	s := a.Summary()
	if s.SizeBytes != int64(len(a.PDF)) {
		t.Errorf("SizeBytes = %d, want %d", s.SizeBytes, len(a.PDF))
	}
	if s.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", s.PageCount)
	}
	if len(s.SHA1) != 40 {
		t.Errorf("SHA1 = %q, want 40 hex chars", s.SHA1)
	}

	// Same bytes, same checksum.
	b := &ComposedArtifact{PDF: []byte("%PDF-1.4 test"), PageCount: 2}
	if b.Summary().SHA1 != s.SHA1 {
		t.Error("Summary() checksum not stable across identical inputs")
	}
}
