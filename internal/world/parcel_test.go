package world

import (
	"errors"
	"testing"
)

var testThresholds = Thresholds{0, 0.000155, 0.001, 0.001466}

func TestIsFull(t *testing.T) {
	p := &Parcel{ID: 1, MaxDensity: 1, InverseArea: 0.5}
	if p.IsFull() {
		t.Fatalf("empty parcel reported full")
	}
	p.AddResident(1)
	if p.IsFull() {
		t.Fatalf("half-occupied parcel reported full (density %v)", p.Density())
	}
	p.AddResident(2)
	if !p.IsFull() {
		t.Fatalf("parcel at max density not full (density %v)", p.Density())
	}
}

func TestResidentsStaySorted(t *testing.T) {
	p := &Parcel{ID: 1}
	for _, id := range []uint64{5, 1, 3} {
		if err := p.AddResident(id); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}
	if err := p.AddResident(3); !errors.Is(err, ErrAlreadyResident) {
		t.Fatalf("duplicate add err = %v", err)
	}
	got := p.Residents()
	if len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 5 {
		t.Fatalf("residents = %v, want [1 3 5]", got)
	}
	got[0] = 99
	if !p.HasResident(1) {
		t.Fatalf("Residents must return a copy")
	}
	if err := p.RemoveResident(4); !errors.Is(err, ErrNotResident) {
		t.Fatalf("remove absent err = %v", err)
	}
}

func TestThresholdsTarget(t *testing.T) {
	cases := []struct {
		density float64
		want    BuildType
	}{
		{0, 1},
		{0.000002, 2},
		{0.000155, 2},
		{0.000158, 3},
		{0.0012, 4},
		{0.001852, 5},
	}
	for _, tc := range cases {
		if got := testThresholds.Target(tc.density); got != tc.want {
			t.Fatalf("Target(%v) = %d, want %d", tc.density, got, tc.want)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := testThresholds.Validate(); err != nil {
		t.Fatalf("valid ladder rejected: %v", err)
	}
	for _, bad := range []Thresholds{
		{0, 0.1, 0.1, 0.2},
		{0.3, 0.2, 0.4, 0.5},
		{0, 0, 0, 0},
	} {
		if err := bad.Validate(); !errors.Is(err, ErrInvalidThreshold) {
			t.Fatalf("ladder %v: err = %v, want ErrInvalidThreshold", bad, err)
		}
	}
}

func TestUpdateBuildTypeReachesTarget(t *testing.T) {
	cases := []struct {
		name    string
		start   BuildType
		density float64
		want    BuildType
	}{
		{"empty stays", BuildLargeHouses, 0, BuildLargeHouses},
		{"one threshold", BuildLargeHouses, 0.0001, BuildSmallHouses},
		{"three thresholds", BuildLargeHouses, 0.0012, BuildMidFlats},
		{"top", BuildLargeHouses, 0.002, BuildHighRise},
		{"already above", BuildHighRise, 0.0001, BuildHighRise},
	}
	for _, tc := range cases {
		p := &Parcel{ID: 1, BuildType: tc.start, BaseDensity: tc.density}
		changed := p.UpdateBuildType(testThresholds, nil, 0.5)
		if p.BuildType != tc.want {
			t.Fatalf("%s: build type = %d, want %d", tc.name, p.BuildType, tc.want)
		}
		if changed != (tc.want != tc.start) {
			t.Fatalf("%s: changed = %v", tc.name, changed)
		}
		for i := 0; i < 2; i++ {
			if p.UpdateBuildType(testThresholds, nil, 0.5) || p.BuildType != tc.want {
				t.Fatalf("%s: repeated call %d changed build type to %d", tc.name, i, p.BuildType)
			}
		}
	}
}

func TestUpdateBuildTypeIdempotentAndMonotone(t *testing.T) {
	p := &Parcel{ID: 1, BuildType: BuildSmallHouses, BaseDensity: 0.0001}
	for i := 0; i < 3; i++ {
		if p.UpdateBuildType(testThresholds, nil, 0.5) {
			t.Fatalf("call %d changed a parcel already at its target", i)
		}
	}

	dense := &Parcel{ID: 2, BuildType: BuildMidFlats}
	if dense.UpdateBuildType(testThresholds, []BuildType{1, 1, 1}, 0.5) || dense.BuildType != BuildMidFlats {
		t.Fatalf("build type regressed to %d", dense.BuildType)
	}
}

func TestNeighborsPullDevelopment(t *testing.T) {
	p := &Parcel{ID: 1, BuildType: BuildLargeHouses}
	neighbors := []BuildType{1, 2, 3, 1}

	if got := p.UpgradePotential(testThresholds, neighbors); got != 0.5 {
		t.Fatalf("upgrade potential = %v, want 0.5", got)
	}
	if got := p.UpgradePotential(testThresholds, nil); got != 0 {
		t.Fatalf("upgrade potential without neighbors = %v", got)
	}
	if got := p.TargetBuildType(testThresholds, neighbors, 0.6); got != BuildLargeHouses {
		t.Fatalf("weak pull target = %d, want 1", got)
	}
	if got := p.TargetBuildType(testThresholds, neighbors, 0.5); got != BuildSmallHouses {
		t.Fatalf("strong pull target = %d, want 2", got)
	}
	if !p.UpdateBuildType(testThresholds, neighbors, 0.5) || p.BuildType != BuildSmallHouses {
		t.Fatalf("neighbor pull did not advance the parcel")
	}
	if got := p.TargetBuildType(testThresholds, neighbors, 0); got != BuildLargeHouses {
		t.Fatalf("zero influence must disable neighbor pull, got %d", got)
	}
}
