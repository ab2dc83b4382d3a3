package risk

import (
	"sort"
	"sync"

	"github.com/arbcore/arbengine/internal/domain"
)

// Inflight enforces the one-plan-per-market-group invariant and tracks
// groups halted after an unwind failure. Acquired notional counts against
// capital until the plan reaches a terminal state.
type Inflight struct {
	mu     sync.Mutex
	busy   map[string]float64 // groupID -> committed notional
	halted map[string]bool
}

// NewInflight creates an empty registry.
func NewInflight() *Inflight {
	return &Inflight{
		busy:   make(map[string]float64),
		halted: make(map[string]bool),
	}
}

// TryAcquire reserves the group for a plan committing the given notional.
// It fails with ErrGroupHalted for frozen groups and ErrGroupBusy when a
// prior plan has not reached a terminal state.
func (f *Inflight) TryAcquire(groupID string, notional float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.halted[groupID] {
		return domain.ErrGroupHalted
	}
	if _, ok := f.busy[groupID]; ok {
		return domain.ErrGroupBusy
	}
	f.busy[groupID] = notional
	return nil
}

// Release frees the group and returns the notional that was committed.
// Releasing an unheld group is a no-op.
func (f *Inflight) Release(groupID string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.busy[groupID]
	delete(f.busy, groupID)
	return n
}

// Committed returns the total notional reserved by in-flight plans.
func (f *Inflight) Committed() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, n := range f.busy {
		total += n
	}
	return total
}

// Halt freezes a group; it receives no further plans until cleared.
func (f *Inflight) Halt(groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted[groupID] = true
}

// Clear lifts a halt. Intended for explicit operator action only.
func (f *Inflight) Clear(groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.halted, groupID)
}

// IsHalted reports whether the group is frozen.
func (f *Inflight) IsHalted(groupID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.halted[groupID]
}

// Halted lists all frozen groups in stable order.
func (f *Inflight) Halted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.halted))
	for g := range f.halted {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
