// Package agents provides the household agent model, its bounded
// dissatisfaction memory, and the population index linking households to
// the parcels they live on.
package agents

import (
	"errors"
	"fmt"

	"github.com/nicolas-f/gdms-usm/internal/world"
)

// HouseholdID is a unique identifier for a household.
type HouseholdID uint64

// WealthPlateauAge is the age at which a household reaches its maximum wealth.
const WealthPlateauAge = 60

var (
	ErrNoParcel       = errors.New("household has no parcel")
	ErrParcelMismatch = errors.New("parcel is not the household's home")
)

// Household is a residential agent.
type Household struct {
	ID        HouseholdID     `json:"id"`
	Age       int             `json:"age"`        // Years
	MaxWealth int             `json:"max_wealth"` // Wealth ceiling reached at WealthPlateauAge
	ParcelID  *world.ParcelID `json:"parcel_id,omitempty"`
}

// NewHousehold creates a household, optionally already assigned to a parcel.
// The assignment only becomes a residency once the population moves it in.
func NewHousehold(id HouseholdID, age, maxWealth int, parcel *world.ParcelID) *Household {
	h := &Household{ID: id, Age: age, MaxWealth: maxWealth}
	if parcel != nil {
		pid := *parcel
		h.ParcelID = &pid
	}
	return h
}

// Grow advances the household by one year.
func (h *Household) Grow() {
	h.Age++
}

// Wealth returns maxWealth·age/60 truncated, plateauing at maxWealth from 60.
func (h *Household) Wealth() int {
	return WealthAt(h.MaxWealth, h.Age)
}

// WealthAt is the wealth curve for a given ceiling and age.
func WealthAt(maxWealth, age int) int {
	if age < WealthPlateauAge {
		return maxWealth * age / WealthPlateauAge
	}
	return maxWealth
}

// Housed reports whether the household currently has a parcel.
func (h *Household) Housed() bool {
	return h.ParcelID != nil
}

// checkHome verifies p is the household's current parcel.
func (h *Household) checkHome(p *world.Parcel) error {
	if h.ParcelID == nil || p == nil {
		return fmt.Errorf("household %d: %w", h.ID, ErrNoParcel)
	}
	if p.ID != *h.ParcelID {
		return fmt.Errorf("household %d lives on %d, not %d: %w", h.ID, *h.ParcelID, p.ID, ErrParcelMismatch)
	}
	return nil
}

// WillMoveCoefficient returns the willingness to move given the household's
// home parcel. Households in coreZone start from a higher base.
func (h *Household) WillMoveCoefficient(home *world.Parcel, coreZone int) (int, error) {
	if err := h.checkHome(home); err != nil {
		return 0, err
	}
	return WillMoveScore(home.ZoneID == coreZone, h.Age), nil
}

// IdealHousingCoefficient returns how well the household fits its home
// parcel's build type.
func (h *Household) IdealHousingCoefficient(home *world.Parcel) (int, error) {
	if err := h.checkHome(home); err != nil {
		return 0, err
	}
	return IdealHousingScore(home.BuildType, h.Wealth(), h.Age), nil
}
