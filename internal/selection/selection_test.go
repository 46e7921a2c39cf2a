package selection

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

func candidates(n int) []*world.Parcel {
	out := make([]*world.Parcel, n)
	for i := range out {
		out[i] = &world.Parcel{
			ID:             world.ParcelID(i),
			BuildType:      world.BuildType(i%5 + 1),
			AmenitiesIndex: (i * 7) % 21,
		}
	}
	return out
}

func TestSelectEmpty(t *testing.T) {
	g := NewGaussian(rand.New(rand.NewSource(1)), DefaultSigma, DefaultAmenityWeight)
	h := agents.NewHousehold(1, 40, 50000, nil)
	if _, err := g.Select(h, nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestSelectDeterministicForSeed(t *testing.T) {
	cands := candidates(12)
	h := agents.NewHousehold(1, 40, 50000, nil)
	a := NewGaussian(rand.New(rand.NewSource(99)), DefaultSigma, DefaultAmenityWeight)
	b := NewGaussian(rand.New(rand.NewSource(99)), DefaultSigma, DefaultAmenityWeight)
	for i := 0; i < 50; i++ {
		pa, err := a.Select(h, cands)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		pb, _ := b.Select(h, cands)
		if pa.ID != pb.ID {
			t.Fatalf("draw %d: %d != %d with the same seed", i, pa.ID, pb.ID)
		}
	}
}

func TestSelectNeverPicksZeroWeight(t *testing.T) {
	good := &world.Parcel{ID: 1, BuildType: world.BuildLowFlats, AmenitiesIndex: 20}
	bad := &world.Parcel{ID: 2, BuildType: world.BuildLowFlats, AmenitiesIndex: 0}
	h := agents.NewHousehold(1, 40, 50000, nil)

	g := NewGaussian(rand.New(rand.NewSource(3)), DefaultSigma, 1000)
	if w := g.Weight(h, bad); w != 0 {
		t.Fatalf("expected underflowed weight, got %v", w)
	}
	for i := 0; i < 200; i++ {
		p, err := g.Select(h, []*world.Parcel{bad, good, bad})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if p != good {
			t.Fatalf("draw %d chose zero-weight parcel %d", i, p.ID)
		}
	}

	// All weights zero: uniform over the candidates.
	seen := map[world.ParcelID]bool{}
	pool := []*world.Parcel{bad, {ID: 3, AmenitiesIndex: 0, BuildType: world.BuildLowFlats}}
	for i := 0; i < 200; i++ {
		p, err := g.Select(h, pool)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[p.ID] = true
	}
	if len(seen) != 2 {
		t.Fatalf("uniform fallback only ever chose %v", seen)
	}
}

func TestDistancePrefersFitAndAmenities(t *testing.T) {
	g := NewGaussian(nil, DefaultSigma, DefaultAmenityWeight)
	// wealth 25000, age 40: flats score (72+94)/2 = 83, the best fit.
	h := agents.NewHousehold(1, 40, 37500, nil)
	flats := &world.Parcel{BuildType: world.BuildLowFlats, AmenitiesIndex: 20}
	houses := &world.Parcel{BuildType: world.BuildLargeHouses, AmenitiesIndex: 20}
	if d := g.Distance(h, flats); d != 0 {
		t.Fatalf("best-fit, full-amenity distance = %v, want 0", d)
	}
	if g.Distance(h, houses) <= g.Distance(h, flats) {
		t.Fatalf("worse fit should be farther")
	}
	flats.AmenitiesIndex = 10
	if d := g.Distance(h, flats); d != 5 {
		t.Fatalf("amenity deficit distance = %v, want 5", d)
	}
	if g.Weight(h, flats) >= 1 || g.Weight(h, houses) >= g.Weight(h, flats) {
		t.Fatalf("weights do not decrease with distance")
	}
}

func TestNewSelector(t *testing.T) {
	if s, err := New(DefaultConfig(), nil); err != nil || s.Name() != ModelGaussian {
		t.Fatalf("default selector = %v, %v", s, err)
	}
	if _, err := New(Config{Model: "nearest"}, nil); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("unknown model err = %v", err)
	}
}
