// Agents: willingness-to-move and ideal-housing lookup tables.
package agents

import "github.com/nicolas-f/gdms-usm/internal/world"

// WillMoveScore is the willingness to move for a household of the given age,
// living inside the core municipality or not.
func WillMoveScore(inCore bool, age int) int {
	wmc := 6
	if inCore {
		wmc = 12
	}

	switch {
	case age < 25:
		wmc += 36
	case age < 35:
		wmc += 30
	case age < 50:
		wmc += 18
	case age < 65:
		wmc += 8
	default:
		wmc += 2
	}
	return wmc
}

// Wealth band upper bounds (exclusive).
var wealthBands = [4]int{18000, 25200, 35400, 45000}

// Age band upper bounds (exclusive).
var ageBands = [4]int{25, 35, 50, 65}

// defaultHousingScore applies to build types outside the known families.
const defaultHousingScore = 66

// housingTable holds the five-band scores for one build type family.
type housingTable struct {
	byWealth [5]int
	byAge    [5]int
}

var (
	largeHousesTable = housingTable{
		byWealth: [5]int{62, 67, 56, 57, 52},
		byAge:    [5]int{43, 58, 53, 63, 81},
	}
	smallHousesTable = housingTable{
		byWealth: [5]int{62, 61, 55, 49, 69},
		byAge:    [5]int{81, 54, 53, 59, 61},
	}
	flatsTable = housingTable{
		byWealth: [5]int{77, 72, 89, 94, 79},
		byAge:    [5]int{76, 88, 94, 79, 58},
	}
)

func band(v int, bounds [4]int) int {
	for i, b := range bounds {
		if v < b {
			return i
		}
	}
	return len(bounds)
}

// IdealHousingScore averages the wealth-band and age-band scores for a build
// type, truncating toward zero.
func IdealHousingScore(bt world.BuildType, wealth, age int) int {
	byWealth, byAge := defaultHousingScore, defaultHousingScore

	var table *housingTable
	switch bt {
	case world.BuildLargeHouses:
		table = &largeHousesTable
	case world.BuildSmallHouses:
		table = &smallHousesTable
	case world.BuildLowFlats, world.BuildMidFlats:
		table = &flatsTable
	}
	if table != nil {
		byWealth = table.byWealth[band(wealth, wealthBands)]
		byAge = table.byAge[band(age, ageBands)]
	}

	return (byWealth + byAge) / 2
}
