// Package selection resolves the active placement → paywall → product tuple
// and exposes variable lookup against the selected product's property bag.
// Resolution always falls back explicit selection → first available → none,
// so callers get a best-effort value whenever any data exists.
package selection

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/paywallkit/paywallkit/lifecycle"
	"github.com/paywallkit/paywallkit/models"
	"github.com/paywallkit/paywallkit/storage"
)

// State holds the transient selection for one client. The session's
// placement/paywall/product collections are never mutated, only indexed.
type State struct {
	mu           sync.RWMutex
	session      *models.Session
	placementID  string
	productIndex int
	selected     bool

	store  storage.Store
	bus    *lifecycle.Bus
	logger *zap.Logger
}

func NewState(store storage.Store, bus *lifecycle.Bus, logger *zap.Logger) *State {
	return &State{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// SetSession installs the bootstrapped session. The explicit selection, if
// any, is kept; it re-resolves against the new placement list.
func (s *State) SetSession(session *models.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

// Restore re-applies a selection persisted as "placementID,productIndex".
func (s *State) Restore(ctx context.Context) {
	raw, ok, err := s.store.Get(ctx, storage.KeySelection)
	if err != nil || !ok {
		return
	}
	id, index, ok := parseSelection(raw)
	if !ok {
		s.logger.Warn("persisted selection is malformed", zap.String("value", raw))
		return
	}
	s.SetCurrentSelection(ctx, id, index)
}

// SetCurrentSelection points the selection at a placement by id and a product
// index within its first paywall. An unknown id is logged and leaves the
// prior selection untouched; an out-of-range index resolves to no current
// product rather than an error. The selection is persisted for later loads.
func (s *State) SetCurrentSelection(ctx context.Context, placementID string, productIndex int) {
	s.mu.Lock()
	placement := s.findPlacementLocked(placementID)
	if placement == nil {
		s.mu.Unlock()
		s.logger.Warn("unknown placement, selection unchanged", zap.String("placement_id", placementID))
		return
	}
	s.placementID = placementID
	s.productIndex = productIndex
	s.selected = true
	s.mu.Unlock()

	value := fmt.Sprintf("%s,%d", placementID, productIndex)
	if err := s.store.Set(ctx, storage.KeySelection, value, storage.TTLSelection); err != nil {
		s.logger.Warn("selection persist failed", zap.Error(err))
	}

	if product := s.CurrentProduct(); product != nil {
		s.bus.Emit(models.EventProductChanged, product)
	}
}

// CurrentPlacement returns the explicitly selected placement, else the
// session's first placement, else nil.
func (s *State) CurrentPlacement() *models.Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPlacementLocked()
}

// CurrentPaywall returns the current placement's first paywall, else nil.
func (s *State) CurrentPaywall() *models.Paywall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPaywallLocked()
}

// CurrentProduct returns the selected item of the current paywall. With no
// explicit selection it defaults to item 0; an explicit out-of-range index
// yields nil.
func (s *State) CurrentProduct() *models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paywall := s.currentPaywallLocked()
	if paywall == nil || len(paywall.Products) == 0 {
		return nil
	}
	index := 0
	if s.selected {
		index = s.productIndex
	}
	if index < 0 || index >= len(paywall.Products) {
		return nil
	}
	return &paywall.Products[index]
}

// ResolveVariable looks a dotted path up in a product property bag. The path
// is either bare ("price.amount"), resolved against the current selection, or
// composite ("placementID,productIndex,price.amount") naming an explicit
// product; an absent id or negative index in the composite form falls back to
// the current selection. Missing product or path yields no value.
func (s *State) ResolveVariable(path string) (interface{}, bool) {
	placementID, index, propertyPath := splitVariable(path)

	var product *models.Product
	if placementID == "" || index < 0 {
		product = s.CurrentProduct()
	} else {
		s.mu.RLock()
		placement := s.findPlacementLocked(placementID)
		if placement != nil && len(placement.Paywalls) > 0 {
			paywall := &placement.Paywalls[0]
			if index < len(paywall.Products) {
				product = &paywall.Products[index]
			}
		}
		s.mu.RUnlock()
	}
	if product == nil {
		return nil, false
	}
	return product.Property(propertyPath)
}

func (s *State) currentPlacementLocked() *models.Placement {
	if s.selected {
		if p := s.findPlacementLocked(s.placementID); p != nil {
			return p
		}
	}
	if s.session != nil && len(s.session.Placements) > 0 {
		return &s.session.Placements[0]
	}
	return nil
}

func (s *State) currentPaywallLocked() *models.Paywall {
	placement := s.currentPlacementLocked()
	if placement == nil || len(placement.Paywalls) == 0 {
		return nil
	}
	return &placement.Paywalls[0]
}

func (s *State) findPlacementLocked(id string) *models.Placement {
	if s.session == nil {
		return nil
	}
	for i := range s.session.Placements {
		if s.session.Placements[i].ID == id {
			return &s.session.Placements[i]
		}
	}
	return nil
}

// parseSelection splits a persisted "placementID,productIndex" value.
func parseSelection(raw string) (string, int, bool) {
	i := strings.LastIndex(raw, ",")
	if i <= 0 {
		return "", 0, false
	}
	index, err := strconv.Atoi(raw[i+1:])
	if err != nil {
		return "", 0, false
	}
	return raw[:i], index, true
}

// splitVariable splits a variable key into its optional explicit selection
// and the property path. Anything that is not a three-part composite is
// treated as a bare path.
func splitVariable(key string) (placementID string, index int, path string) {
	parts := strings.SplitN(key, ",", 3)
	if len(parts) < 3 {
		return "", -1, key
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", -1, key
	}
	return parts[0], i, parts[2]
}
