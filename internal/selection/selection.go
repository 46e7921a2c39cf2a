// Package selection picks a destination parcel for a household that decided
// to move.
package selection

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

var (
	ErrNoCandidates = errors.New("no candidate parcels")
	ErrUnknownModel = errors.New("unknown selection model")
)

// ModelGaussian is the only selector model so far.
const ModelGaussian = "gaussian"

// ParcelSelector chooses one of candidates for h.
type ParcelSelector interface {
	Name() string
	Select(h *agents.Household, candidates []*world.Parcel) (*world.Parcel, error)
}

// Config parameterises the selector.
type Config struct {
	Model         string  `yaml:"model"`
	Sigma         float64 `yaml:"sigma"`
	AmenityWeight float64 `yaml:"amenity_weight"`
}

// DefaultConfig returns the Gaussian selector defaults.
func DefaultConfig() Config {
	return Config{Model: ModelGaussian, Sigma: DefaultSigma, AmenityWeight: DefaultAmenityWeight}
}

// New builds the configured selector drawing from rng.
func New(cfg Config, rng *rand.Rand) (ParcelSelector, error) {
	switch cfg.Model {
	case ModelGaussian, "":
		return NewGaussian(rng, cfg.Sigma, cfg.AmenityWeight), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
	}
}

const (
	DefaultSigma         = 10.0
	DefaultAmenityWeight = 0.5
)

// Gaussian samples candidates with probability proportional to
// exp(−d²/2σ²), where d is how far a candidate falls short of the
// household's best achievable housing fit, plus an amenity deficit term.
//
// The kernel parameters are provisional until calibrated against observed
// relocations.
type Gaussian struct {
	Sigma         float64
	AmenityWeight float64
	rng           *rand.Rand
}

// NewGaussian creates a Gaussian selector. A nil rng is seeded with 1.
func NewGaussian(rng *rand.Rand, sigma, amenityWeight float64) *Gaussian {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	return &Gaussian{Sigma: sigma, AmenityWeight: amenityWeight, rng: rng}
}

func (g *Gaussian) Name() string { return ModelGaussian }

// Distance is the preference distance between h and a candidate parcel.
func (g *Gaussian) Distance(h *agents.Household, p *world.Parcel) float64 {
	wealth := h.Wealth()
	best := 0
	for bt := world.MinBuildType; bt <= world.MaxBuildType; bt++ {
		best = max(best, agents.IdealHousingScore(bt, wealth, h.Age))
	}
	fit := agents.IdealHousingScore(p.BuildType, wealth, h.Age)
	return float64(best-fit) + g.AmenityWeight*float64(20-p.AmenitiesIndex)
}

// Weight is the Gaussian kernel of the preference distance.
func (g *Gaussian) Weight(h *agents.Household, p *world.Parcel) float64 {
	d := g.Distance(h, p)
	return math.Exp(-(d * d) / (2 * g.Sigma * g.Sigma))
}

// Select draws one candidate. Candidates are weighed in the order given, so
// the same order and seed give the same choice. If every weight underflows to
// zero the draw is uniform.
func (g *Gaussian) Select(h *agents.Household, candidates []*world.Parcel) (*world.Parcel, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("household %d: %w", h.ID, ErrNoCandidates)
	}

	weights := make([]float64, len(candidates))
	total := 0.0
	for i, p := range candidates {
		weights[i] = g.Weight(h, p)
		total += weights[i]
	}
	if total == 0 {
		return candidates[g.rng.Intn(len(candidates))], nil
	}

	r := g.rng.Float64() * total
	last := 0
	for i, w := range weights {
		if w == 0 {
			continue
		}
		last = i
		r -= w
		if r < 0 {
			return candidates[i], nil
		}
	}
	// Rounding left r just above zero.
	return candidates[last], nil
}
