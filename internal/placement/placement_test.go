package placement

import (
	"math"
	"testing"

	"trafikkarta/core-go/internal/region"
)

func TestHash(t *testing.T) {
	cases := map[string]int64{
		"":    0,
		"a":   97,
		"ab":  97*31 + 98,
		"abc": (97*31+98)*31 + 99,
	}
	for in, want := range cases {
		if got := Hash(in); got != want {
			t.Fatalf("Hash(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestHash_wrapsAndStaysNonNegative(t *testing.T) {
	for _, s := range []string{
		"E4 norrgående mellan Trafikplats Häggvik och Trafikplats Rotebro",
		"Väg 73 vid Handen",
		"zzzzzzzzzzzzzzzzzzzzzzzz",
	} {
		h := Hash(s)
		if h < 0 || h > math.MaxInt32+1 {
			t.Fatalf("Hash(%q) = %d out of range", s, h)
		}
		if h != Hash(s) {
			t.Fatalf("Hash(%q) not deterministic", s)
		}
	}
}

func TestOffset_bounds(t *testing.T) {
	for _, h := range []int64{0, 1, 999, 1000, 123456789, math.MaxInt32, math.MaxInt32 + 1} {
		dLat, dLon := Offset(h)
		if math.Abs(dLat) > Spread || math.Abs(dLon) > Spread {
			t.Fatalf("Offset(%d) = (%v, %v) exceeds spread", h, dLat, dLon)
		}
	}
}

func TestOffset_knownValue(t *testing.T) {
	// hash 123456: low digits 456, high digits 123.456
	dLat, dLon := Offset(123456)
	wantLon := (0.456 - 0.5) * 2 * Spread
	wantLat := (0.123456 - 0.5) * 2 * Spread
	if math.Abs(dLon-wantLon) > 1e-12 {
		t.Fatalf("dLon = %v, want %v", dLon, wantLon)
	}
	if math.Abs(dLat-wantLat) > 1e-12 {
		t.Fatalf("dLat = %v, want %v", dLat, wantLat)
	}
}

func TestDescriptor(t *testing.T) {
	if got := Descriptor("Plats", "Rubrik", "id"); got != "Plats" {
		t.Fatalf("expected location descriptor, got %q", got)
	}
	if got := Descriptor("", "Rubrik", "id"); got != "Rubrik" {
		t.Fatalf("expected header, got %q", got)
	}
	if got := Descriptor("", "", "id"); got != "id" {
		t.Fatalf("expected id, got %q", got)
	}
}

func TestResolver(t *testing.T) {
	r := NewResolver(region.Sweden())

	pos, ok := r.Resolve("Väg 73 vid Handen", 1)
	if !ok {
		t.Fatalf("expected Stockholm to resolve")
	}
	if math.Abs(pos.Lat-59.33) > Spread || math.Abs(pos.Lon-18.07) > Spread {
		t.Fatalf("resolved position %+v too far from centroid", pos)
	}
	again, _ := r.Resolve("Väg 73 vid Handen", 1)
	if again != pos {
		t.Fatalf("expected deterministic placement, got %+v then %+v", pos, again)
	}

	if _, ok := r.Resolve("x", 99); ok {
		t.Fatalf("expected unknown county to be rejected")
	}
	if _, ok := r.ResolveFirst("x", nil); ok {
		t.Fatalf("expected empty county list to be rejected")
	}
	if _, ok := r.ResolveFirst("x", []int{12, 1}); !ok {
		t.Fatalf("expected first county to resolve")
	}
}

func TestResolver_uppsalaDescriptor(t *testing.T) {
	r := NewResolver(region.Sweden())

	p, ok := r.Resolve("E4 norr om Uppsala", 3)
	if !ok {
		t.Fatalf("expected Uppsala län to resolve")
	}
	if math.Abs(p.Lat-59.9) > Spread || math.Abs(p.Lon-17.7) > Spread {
		t.Fatalf("expected position within %v of (59.9, 17.7), got %+v", Spread, p)
	}

	again, _ := r.Resolve("E4 norr om Uppsala", 3)
	if again != p {
		t.Fatalf("expected repeat resolution %+v, got %+v", p, again)
	}

	other, _ := r.Resolve("Väg 55 vid Enköping", 3)
	if other == p {
		t.Fatalf("expected a different descriptor to land elsewhere, got %+v for both", p)
	}
}
