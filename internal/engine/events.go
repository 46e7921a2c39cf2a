package engine

import (
	"time"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

// Listener is notified of population changes as they commit.
type Listener interface {
	HouseholdAdded(h *agents.Household)
	HouseholdDeleted(h *agents.Household)
	HouseholdMoved(h *agents.Household, from, to world.ParcelID)
}

// StepReport summarises one completed step.
type StepReport struct {
	Step       uint64        `json:"step"`
	Year       int           `json:"year"`
	Population int           `json:"population"`
	Evaluated  int           `json:"evaluated"`
	Movers     int           `json:"movers"`  // Households that decided to move
	Moved      int           `json:"moved"`   // Relocations committed
	Skipped    int           `json:"skipped"` // Movers left in place this step
	Upgraded   int           `json:"upgraded"`
	Duration   time.Duration `json:"duration_ns"`
}

func (s *Simulation) notifyAdded(h *agents.Household) {
	for _, l := range s.listeners {
		l.HouseholdAdded(h)
	}
}

func (s *Simulation) notifyDeleted(h *agents.Household) {
	for _, l := range s.listeners {
		l.HouseholdDeleted(h)
	}
}

func (s *Simulation) notifyMoved(h *agents.Household, from, to world.ParcelID) {
	for _, l := range s.listeners {
		l.HouseholdMoved(h, from, to)
	}
}

// subscriberBuffer is the number of reports a slow subscriber may lag behind
// before reports are dropped for it.
const subscriberBuffer = 16

// Subscribe returns a channel receiving every completed step report. The
// channel is closed on Unsubscribe or when the run ends. Once the run has
// ended the returned channel is already closed.
func (s *Simulation) Subscribe() (int, <-chan StepReport) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan StepReport, subscriberBuffer)
	if s.subsClosed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe stops delivery to a subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Simulation) publish(r StepReport) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

func (s *Simulation) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subsClosed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}
