package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func product(code string, stock int) domain.Product {
	return domain.Product{
		Code:          code,
		DisplayName:   "Product " + code,
		ModelLabel:    "M-" + code,
		BasePrice:     decimal.NewFromInt(100),
		StockQuantity: stock,
	}
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	m := NewManager(store, discardLogger())
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func quantities(lines []Line) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.ProductCode] = l.Quantity
	}
	return out
}

// ============================================================================
// AddLine
// ============================================================================

func TestAddLine_WithinStockSumsQuantities(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	p := product("A1", 10)

	for _, qty := range []int{2, 3, 4} {
		_, err := m.AddLine(ctx, p, qty, "")
		require.NoError(t, err)
	}

	lines, err := m.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 9, lines[0].Quantity)
}

func TestAddLine_OverStockClampsSilently(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	p := product("A1", 5)

	_, err := m.AddLine(ctx, p, 3, "")
	require.NoError(t, err)
	lines, err := m.AddLine(ctx, p, 4, "")
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestAddLine_NewLineClampedToStock(t *testing.T) {
	m := newTestManager(t, nil)

	lines, err := m.AddLine(context.Background(), product("A1", 2), 7, "engrave")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 2, lines[0].StockSnapshot)
	assert.Equal(t, "engrave", lines[0].Note)
	assert.Equal(t, "Product A1", lines[0].DisplayName)
	assert.Equal(t, "M-A1", lines[0].ModelLabel)
}

func TestAddLine_OutOfStockAddsNothing(t *testing.T) {
	m := newTestManager(t, nil)

	lines, err := m.AddLine(context.Background(), product("A1", 0), 3, "")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestAddLine_KeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	for _, code := range []string{"C", "A", "B"} {
		_, err := m.AddLine(ctx, product(code, 5), 1, "")
		require.NoError(t, err)
	}
	lines, err := m.AddLine(ctx, product("A", 5), 1, "")
	require.NoError(t, err)

	require.Len(t, lines, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{lines[0].ProductCode, lines[1].ProductCode, lines[2].ProductCode})
}

func TestAddLine_ExistingLineClampedToNewStock(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, err := m.AddLine(ctx, product("A1", 10), 8, "")
	require.NoError(t, err)

	// Stock dropped to 5 since the line was created.
	lines, err := m.AddLine(ctx, product("A1", 5), 2, "")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, 5, lines[0].StockSnapshot)

	warnings, err := m.StockWarnings(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestAddLine_ExistingLineRemovedWhenStockGone(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, err := m.AddLine(ctx, product("A1", 10), 3, "")
	require.NoError(t, err)

	lines, err := m.AddLine(ctx, product("A1", 0), 1, "")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestAddLine_RefreshesPriceAndNote(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, err := m.AddLine(ctx, product("A1", 10), 1, "first")
	require.NoError(t, err)

	p := product("A1", 10)
	p.BasePrice = decimal.NewFromInt(120)
	lines, err := m.AddLine(ctx, p, 1, "")
	require.NoError(t, err)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "first", lines[0].Note)

	lines, err = m.AddLine(ctx, p, 0, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "second", lines[0].Note)
}

func TestAddLine_InvalidInput(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	negPrice := product("A1", 1)
	negPrice.BasePrice = decimal.NewFromInt(-1)

	tests := []struct {
		name string
		p    domain.Product
		qty  int
	}{
		{"negative quantity", product("A1", 5), -1},
		{"empty code", product("", 5), 1},
		{"negative stock", product("A1", -2), 1},
		{"negative price", negPrice, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddLine(ctx, tt.p, tt.qty, "")
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidInput(err))
		})
	}

	lines, err := m.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

// ============================================================================
// RemoveOneUnit / AdjustQuantity / SetQuantity
// ============================================================================

func TestRemoveOneUnit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, err := m.AddLine(ctx, product("A1", 5), 2, "")
	require.NoError(t, err)

	lines, err := m.RemoveOneUnit(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 1, lines[0].Quantity)

	lines, err = m.RemoveOneUnit(ctx, "A1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = m.RemoveOneUnit(ctx, "A1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestAdjustQuantity(t *testing.T) {
	tests := []struct {
		name  string
		delta int
		want  int
		gone  bool
	}{
		{"increase within stock", 2, 5, false},
		{"increase clamps to stock", 10, 6, false},
		{"decrease", -2, 1, false},
		{"decrease to zero removes", -3, 0, true},
		{"decrease below zero removes", -50, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newTestManager(t, nil)
			_, err := m.AddLine(ctx, product("A1", 6), 3, "")
			require.NoError(t, err)

			lines, err := m.AdjustQuantity(ctx, "A1", tt.delta)
			require.NoError(t, err)
			if tt.gone {
				assert.Empty(t, lines)
				return
			}
			assert.Equal(t, tt.want, quantities(lines)["A1"])
		})
	}
}

func TestAdjustQuantity_AbsentLineIsNoop(t *testing.T) {
	m := newTestManager(t, nil)

	lines, err := m.AdjustQuantity(context.Background(), "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSetQuantity_ExistingLine(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, err := m.AddLine(ctx, product("A1", 6), 1, "")
	require.NoError(t, err)

	lines, err := m.SetQuantity(ctx, "A1", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, quantities(lines)["A1"])

	lines, err = m.SetQuantity(ctx, "A1", 99, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, quantities(lines)["A1"])

	lines, err = m.SetQuantity(ctx, "A1", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSetQuantity_InsertsWhenProductGiven(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	p := product("B2", 3)

	lines, err := m.SetQuantity(ctx, "B2", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, lines, "no product to insert from")

	lines, err = m.SetQuantity(ctx, "B2", 0, &p)
	require.NoError(t, err)
	assert.Empty(t, lines, "zero quantity never inserts")

	lines, err = m.SetQuantity(ctx, "B2", 5, &p)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "Product B2", lines[0].DisplayName)
}

func TestSetQuantity_InvalidInput(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	other := product("X", 3)

	_, err := m.SetQuantity(ctx, "A1", -1, nil)
	assert.True(t, apperrors.IsInvalidInput(err))

	_, err = m.SetQuantity(ctx, "A1", 1, &other)
	assert.True(t, apperrors.IsInvalidInput(err))
}

// ============================================================================
// UpdateNote / RefreshStock / StockWarnings / Clear
// ============================================================================

func TestUpdateNote(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, err := m.AddLine(ctx, product("A1", 6), 1, "old")
	require.NoError(t, err)

	lines, err := m.UpdateNote(ctx, "A1", "gift wrap")
	require.NoError(t, err)
	assert.Equal(t, "gift wrap", lines[0].Note)

	lines, err = m.UpdateNote(ctx, "missing", "ignored")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "gift wrap", lines[0].Note)
}

func TestRefreshStock_DoesNotClamp(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, err := m.AddLine(ctx, product("A1", 10), 6, "")
	require.NoError(t, err)
	_, err = m.AddLine(ctx, product("B2", 10), 2, "")
	require.NoError(t, err)

	warnings, err := m.StockWarnings(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	lines, err := m.RefreshStock(ctx, map[string]int{"A1": 4, "Z9": 1})
	require.NoError(t, err)
	assert.Equal(t, 6, quantities(lines)["A1"])

	warnings, err = m.StockWarnings(ctx)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, StockWarning{
		ProductCode: "A1",
		DisplayName: "Product A1",
		Quantity:    6,
		Available:   4,
		Message:     "Product A1: 6 in cart but only 4 available",
	}, warnings[0])

	// Warnings are read-only.
	lines, err = m.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, quantities(lines)["A1"])
}

func TestClear_ErasesPersistedCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := newTestManager(t, store)

	_, err := m.AddLine(ctx, product("A1", 6), 1, "")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))
	require.NoError(t, m.Close(ctx))

	lines, err := m.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDeduct_KeepsUnitsAddedLater(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := newTestManager(t, store)

	_, err := m.AddLine(ctx, product("A1", 10), 2, "")
	require.NoError(t, err)
	submitted, err := m.Lines(ctx)
	require.NoError(t, err)

	_, err = m.AddLine(ctx, product("A1", 10), 1, "")
	require.NoError(t, err)
	_, err = m.AddLine(ctx, product("B1", 10), 4, "")
	require.NoError(t, err)

	lines, err := m.Deduct(ctx, quantities(submitted))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A1": 1, "B1": 4}, quantities(lines))

	require.NoError(t, m.Close(ctx))
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, map[string]int{"A1": 1, "B1": 4}, quantities(snap.Lines))
}

func TestDeduct_EmptiedCartErasesPersistedCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := newTestManager(t, store)

	_, err := m.AddLine(ctx, product("A1", 10), 2, "")
	require.NoError(t, err)

	lines, err := m.Deduct(ctx, map[string]int{"A1": 2, "GONE": 1})
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, m.Close(ctx))
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = m.Deduct(ctx, map[string]int{"A1": -1})
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestLines_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	lines, err := m.AddLine(ctx, product("A1", 6), 1, "")
	require.NoError(t, err)

	lines[0].Quantity = 100

	fresh, err := m.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh[0].Quantity)
}

// ============================================================================
// Persistence and readiness
// ============================================================================

// gatedStore blocks Load until release is closed and records saves.
type gatedStore struct {
	*MemoryStore
	release chan struct{}
	loadErr error

	mu    sync.Mutex
	saves int
}

func (s *gatedStore) Load(ctx context.Context) (*Snapshot, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.Load(ctx)
}

func (s *gatedStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, snap)
}

func TestManager_MutationsWaitForLoad(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	require.NoError(t, store.MemoryStore.Save(ctx, Snapshot{Lines: []Line{
		{ProductCode: "OLD", Quantity: 2, StockSnapshot: 5, UnitPrice: decimal.NewFromInt(10)},
	}}))

	m := newTestManager(t, store)

	result := make(chan []Line, 1)
	go func() {
		lines, err := m.AddLine(ctx, product("NEW", 5), 1, "")
		assert.NoError(t, err)
		result <- lines
	}()

	select {
	case <-result:
		t.Fatal("mutation applied before the persisted cart was read")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case lines := <-result:
		assert.Equal(t, map[string]int{"OLD": 2, "NEW": 1}, quantities(lines))
	case <-time.After(2 * time.Second):
		t.Fatal("mutation never completed")
	}
}

func TestManager_ContextCanceledWhileLoading(t *testing.T) {
	store := &gatedStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	m := newTestManager(t, store)
	t.Cleanup(func() { close(store.release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.AddLine(ctx, product("A1", 5), 1, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_LoadFailureRefusesMutations(t *testing.T) {
	store := &gatedStore{MemoryStore: NewMemoryStore(), release: make(chan struct{}), loadErr: errors.New("redis: connection refused")}
	close(store.release)
	m := newTestManager(t, store)

	_, err := m.AddLine(context.Background(), product("A1", 5), 1, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.ErrorIs(t, m.Err(), ErrNotLoaded)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.saves)
}

func TestManager_PersistsAfterMutation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := newTestManager(t, store)

	_, err := m.AddLine(ctx, product("A1", 5), 2, "note")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		snap, _ := store.Load(ctx)
		return snap != nil && len(snap.Lines) == 1 && snap.Lines[0].Quantity == 2
	}, time.Second, 5*time.Millisecond)
}

func TestManager_ReloadRestoresCart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewManager(store, discardLogger())
	_, err := first.AddLine(ctx, product("A1", 5), 2, "blue")
	require.NoError(t, err)
	_, err = first.AddLine(ctx, product("B2", 5), 1, "")
	require.NoError(t, err)
	want, err := first.Lines(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := newTestManager(t, store)
	got, err := second.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManager_LoadDropsMalformedLines(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, Snapshot{Lines: []Line{
		{ProductCode: "A1", Quantity: 1, StockSnapshot: 3},
		{ProductCode: "", Quantity: 1},
		{ProductCode: "B2", Quantity: 0},
		{ProductCode: "A1", Quantity: 9},
	}}))

	m := newTestManager(t, store)
	lines, err := m.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A1": 1}, quantities(lines))
}

func TestManager_MutationAfterClosePersistsInline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, discardLogger())
	require.NoError(t, m.Close(ctx))

	_, err := m.AddLine(ctx, product("A1", 5), 1, "")
	require.NoError(t, err)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Lines, 1)
}
