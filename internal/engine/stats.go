package engine

import "github.com/nicolas-f/gdms-usm/internal/world"

// SimStats tracks aggregate statistics at the last completed step.
type SimStats struct {
	Households  int                     `json:"households"`
	Parcels     int                     `json:"parcels"`
	FullParcels int                     `json:"full_parcels"`
	AvgAge      float64                 `json:"avg_age"`
	AvgWealth   float64                 `json:"avg_wealth"`
	BuildTypes  map[world.BuildType]int `json:"build_types"`
	TotalMoves  int                     `json:"total_moves"`
}

func (s *Simulation) updateStats() {
	moves := s.stats.TotalMoves
	stats := SimStats{
		BuildTypes: make(map[world.BuildType]int),
		TotalMoves: moves,
	}

	totalAge, totalWealth := 0, 0
	for _, h := range s.Population.Households() {
		stats.Households++
		totalAge += h.Age
		totalWealth += h.Wealth()
	}
	for _, p := range s.Population.Parcels() {
		stats.Parcels++
		stats.BuildTypes[p.BuildType]++
		if p.IsFull() {
			stats.FullParcels++
		}
	}
	if stats.Households > 0 {
		stats.AvgAge = float64(totalAge) / float64(stats.Households)
		stats.AvgWealth = float64(totalWealth) / float64(stats.Households)
	}
	s.stats = stats
}
