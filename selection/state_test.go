package selection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paywallkit/paywallkit/lifecycle"
	"github.com/paywallkit/paywallkit/models"
	"github.com/paywallkit/paywallkit/storage"
)

func testSession() *models.Session {
	return &models.Session{
		UserID: "user-1",
		Placements: []models.Placement{
			{
				ID: "0",
				Paywalls: []models.Paywall{
					{
						ID: "pw-main",
						Products: []models.Product{
							{
								ID: "monthly",
								Properties: map[string]interface{}{
									"price": map[string]interface{}{"amount": "9.99", "currency": "USD"},
								},
							},
							{
								ID: "yearly",
								Properties: map[string]interface{}{
									"price": map[string]interface{}{"amount": "79.99", "currency": "USD"},
								},
							},
						},
					},
				},
			},
		},
	}
}

func newTestState(t *testing.T) (*State, *storage.MemoryStore, *lifecycle.Bus) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	bus := lifecycle.NewBus()
	s := NewState(store, bus, logger)
	s.SetSession(testSession())
	return s, store, bus
}

func TestCurrent_DefaultsToFirstOfEachCollection(t *testing.T) {
	s, _, _ := newTestState(t)

	require.NotNil(t, s.CurrentPlacement())
	assert.Equal(t, "0", s.CurrentPlacement().ID)
	require.NotNil(t, s.CurrentPaywall())
	assert.Equal(t, "pw-main", s.CurrentPaywall().ID)
	require.NotNil(t, s.CurrentProduct())
	assert.Equal(t, "monthly", s.CurrentProduct().ID)
}

func TestCurrent_IsIdempotent(t *testing.T) {
	s, _, _ := newTestState(t)

	first := s.CurrentProduct()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, s.CurrentProduct())
		assert.Equal(t, s.CurrentPlacement(), s.CurrentPlacement())
		assert.Equal(t, s.CurrentPaywall(), s.CurrentPaywall())
	}
}

func TestCurrent_EmptySessionYieldsNothing(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	s := NewState(storage.NewMemoryStore(), lifecycle.NewBus(), logger)

	assert.Nil(t, s.CurrentPlacement())
	assert.Nil(t, s.CurrentPaywall())
	assert.Nil(t, s.CurrentProduct())
}

func TestSetCurrentSelection_SelectsAndPersists(t *testing.T) {
	s, store, _ := newTestState(t)
	ctx := context.Background()

	s.SetCurrentSelection(ctx, "0", 1)

	require.NotNil(t, s.CurrentProduct())
	assert.Equal(t, "yearly", s.CurrentProduct().ID)

	val, ok, err := store.Get(ctx, storage.KeySelection)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0,1", val)
}

func TestSetCurrentSelection_UnknownPlacementKeepsPrior(t *testing.T) {
	s, _, _ := newTestState(t)
	ctx := context.Background()

	s.SetCurrentSelection(ctx, "0", 1)
	s.SetCurrentSelection(ctx, "unknown-id", 0)

	require.NotNil(t, s.CurrentProduct())
	assert.Equal(t, "yearly", s.CurrentProduct().ID)
}

func TestSetCurrentSelection_OutOfRangeIndexYieldsNoProduct(t *testing.T) {
	s, _, _ := newTestState(t)

	s.SetCurrentSelection(context.Background(), "0", 7)

	assert.NotNil(t, s.CurrentPlacement())
	assert.NotNil(t, s.CurrentPaywall())
	assert.Nil(t, s.CurrentProduct())
}

func TestSetCurrentSelection_EmitsProductChanged(t *testing.T) {
	s, _, bus := newTestState(t)

	var changed []*models.Product
	bus.On(models.EventProductChanged, func(p interface{}) {
		changed = append(changed, p.(*models.Product))
	})

	s.SetCurrentSelection(context.Background(), "0", 1)

	require.Len(t, changed, 1)
	assert.Equal(t, "yearly", changed[0].ID)
}

func TestRestore_ReappliesPersistedSelection(t *testing.T) {
	s, store, _ := newTestState(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, storage.KeySelection, "0,1", storage.TTLSelection))
	s.Restore(ctx)

	require.NotNil(t, s.CurrentProduct())
	assert.Equal(t, "yearly", s.CurrentProduct().ID)
}

func TestRestore_MalformedValueIsIgnored(t *testing.T) {
	s, store, _ := newTestState(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, storage.KeySelection, "garbage", storage.TTLSelection))
	s.Restore(ctx)

	assert.Equal(t, "monthly", s.CurrentProduct().ID)
}

func TestResolveVariable_BarePathUsesCurrentSelection(t *testing.T) {
	s, _, _ := newTestState(t)

	val, ok := s.ResolveVariable("price.amount")
	require.True(t, ok)
	assert.Equal(t, "9.99", val)

	s.SetCurrentSelection(context.Background(), "0", 1)

	val, ok = s.ResolveVariable("price.amount")
	require.True(t, ok)
	assert.Equal(t, "79.99", val)
}

func TestResolveVariable_CompositeKeySelectsExplicitly(t *testing.T) {
	s, _, _ := newTestState(t)

	val, ok := s.ResolveVariable("0,1,price.amount")
	require.True(t, ok)
	assert.Equal(t, "79.99", val)
}

func TestResolveVariable_CompositeFallsBackWithoutID(t *testing.T) {
	s, _, _ := newTestState(t)

	val, ok := s.ResolveVariable(",-1,price.currency")
	require.True(t, ok)
	assert.Equal(t, "USD", val)
}

func TestResolveVariable_MissingPathOrProduct(t *testing.T) {
	s, _, _ := newTestState(t)

	_, ok := s.ResolveVariable("price.nope")
	assert.False(t, ok)

	_, ok = s.ResolveVariable("missing-placement,0,price.amount")
	assert.False(t, ok)

	_, ok = s.ResolveVariable("0,9,price.amount")
	assert.False(t, ok)
}
