package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"kaspa-price-alerts/internal/storage"
)

// State holds the current all-time-high known to the process. It is only
// raised by Detector.Evaluate.
type State struct {
	mu  sync.RWMutex
	ath decimal.Decimal
}

// NewState seeds the state with a known all-time-high.
func NewState(seed decimal.Decimal) *State {
	return &State{ath: seed}
}

// LoadState seeds the state from the latest persisted record, or from seed
// when nothing has been recorded yet.
func LoadState(ctx context.Context, store storage.AthStore, seed decimal.Decimal) (*State, error) {
	ath, found, err := store.LatestATH(ctx)
	if err != nil {
		return NewState(seed), fmt.Errorf("load ath: %w", err)
	}
	if !found {
		return NewState(seed), nil
	}
	return NewState(ath), nil
}

// ATH returns the current all-time-high.
func (s *State) ATH() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ath
}

func (s *State) raise(price decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !price.GreaterThan(s.ath) {
		return false
	}
	s.ath = price
	return true
}
