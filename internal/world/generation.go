// Parcel field generation using layered simplex noise.
// Produces a hex-shaped urban area with a dense core and a sprawling fringe.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds parcel field generation parameters.
type GenConfig struct {
	Radius     int     // Hex grid radius in cells
	Seed       int64   // Random seed (0 = random)
	CellSize   float64 // Hex circumradius in meters
	CoreZone   int     // Zone code of the central municipality
	CoreRadius int     // Cells within this distance belong to CoreZone
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:     12,
		Seed:       0,
		CellSize:   50,
		CoreZone:   44109,
		CoreRadius: 4,
	}
}

// SmallTestConfig returns a tiny field for rapid iteration.
func SmallTestConfig() GenConfig {
	cfg := DefaultGenConfig()
	cfg.Radius = 3
	cfg.Seed = 42
	cfg.CoreRadius = 1
	return cfg
}

// capacityByBuildType is the number of households a cell holds at each category.
var capacityByBuildType = [MaxBuildType + 1]int{0, 2, 4, 8, 12, 20}

// Capacity returns the household capacity of a cell of the given build type.
func Capacity(bt BuildType) int {
	if !bt.Valid() {
		return 0
	}
	return capacityByBuildType[bt]
}

// Generate creates a parcel field and the map indexing it. Parcels are numbered
// from 0 in (q, r) ascending order and start empty.
func Generate(cfg GenConfig) (*Map, []*Parcel) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	amenNoise := opensimplex.NewNormalized(seed)
	buildNoise := opensimplex.NewNormalized(seed + 1)
	urbanNoise := opensimplex.NewNormalized(seed + 2)

	m := NewMap(cfg.Radius)
	var parcels []*Parcel
	var next ParcelID

	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			coord := HexCoord{Q: q, R: r}
			if !m.InBounds(coord) {
				continue
			}

			center := HexCenter(coord, 1)
			x, y := center[0], center[1]
			dist := Distance(coord, HexCoord{})

			// Centrality: 1.0 at the core, 0.0 at the rim.
			centrality := 1.0
			if cfg.Radius > 0 {
				centrality = 1.0 - float64(dist)/float64(cfg.Radius)
			}

			amen := 0.6*centrality + 0.4*octaveNoise(amenNoise, x, y, 3, 0.15, 0.5)
			constr := octaveNoise(buildNoise, x, y, 3, 0.2, 0.5)
			urban := 0.7*centrality + 0.3*octaveNoise(urbanNoise, x, y, 2, 0.1, 0.5)

			footprint := HexPolygon(coord, cfg.CellSize)
			inv := InverseArea(footprint)
			bt := buildTypeFor(urban)

			p := &Parcel{
				ID:                    next,
				Coord:                 coord,
				BuildType:             bt,
				MaxDensity:            float64(Capacity(bt)) * inv,
				InverseArea:           inv,
				AmenitiesIndex:        clampIndex(amen * 20),
				ConstructibilityIndex: clampIndex(constr * 20),
				ZoneID:                zoneFor(coord, dist, cfg),
				Zoning:                zoningFor(bt),
				Footprint:             footprint,
			}
			next++

			m.Place(p)
			parcels = append(parcels, p)
		}
	}

	return m, parcels
}

func buildTypeFor(urban float64) BuildType {
	switch {
	case urban > 0.8:
		return BuildHighRise
	case urban > 0.6:
		return BuildMidFlats
	case urban > 0.45:
		return BuildLowFlats
	case urban > 0.25:
		return BuildSmallHouses
	default:
		return BuildLargeHouses
	}
}

// zoneFor assigns the core municipality inside CoreRadius and one of six
// suburban municipalities by sector elsewhere.
func zoneFor(c HexCoord, dist int, cfg GenConfig) int {
	if dist <= cfg.CoreRadius {
		return cfg.CoreZone
	}
	center := HexCenter(c, 1)
	angle := math.Atan2(center[1], center[0]) + math.Pi
	sector := int(angle/(math.Pi/3)) % 6
	return cfg.CoreZone + 1 + sector
}

func zoningFor(bt BuildType) string {
	switch bt {
	case BuildHighRise, BuildMidFlats:
		return "UA"
	case BuildLowFlats:
		return "UB"
	case BuildSmallHouses:
		return "UC"
	default:
		return "AU"
	}
}

func clampIndex(v float64) int {
	i := int(math.Round(v))
	if i < 0 {
		return 0
	}
	if i > 20 {
		return 20
	}
	return i
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
