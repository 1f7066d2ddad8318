package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/domain"
	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

const (
	loadTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrNotLoaded is returned by every operation of a Manager whose persisted
// snapshot could not be read. Mutating it would overwrite state the store
// still holds.
var ErrNotLoaded = errors.New("cart snapshot not loaded")

type persistOp struct {
	clear bool
	snap  Snapshot
}

// Manager owns one session's cart. Stock overflow is clamped silently and
// operations on absent lines are no-ops; the only errors are malformed input,
// a failed initial load and context cancellation while waiting for it.
//
// Every mutation schedules a write of the full cart to the Store. Writes are
// asynchronous and coalesced: only the latest state is written.
type Manager struct {
	store  Store
	logger *slog.Logger

	ready   chan struct{}
	loadErr error

	mu    sync.Mutex
	lines []Line

	pmu     sync.Mutex
	pending *persistOp
	closed  bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewManager starts loading the persisted snapshot in the background and
// returns immediately. Operations block until the load finishes.
func NewManager(store Store, logger *slog.Logger) *Manager {
	m := &Manager{
		store:  store,
		logger: logger,
		ready:  make(chan struct{}),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.load()
	go m.writer()
	return m
}

func (m *Manager) load() {
	defer close(m.ready)

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	snap, err := m.store.Load(ctx)
	if err != nil {
		m.loadErr = fmt.Errorf("%w: %v", ErrNotLoaded, err)
		m.logger.Warn("cart load failed", slog.String("error", err.Error()))
		return
	}
	if snap != nil {
		m.lines = normalize(snap.Lines)
	}
}

// Ready is closed once the persisted snapshot has been read.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Err reports the load failure, if any. Only meaningful after Ready.
func (m *Manager) Err() error {
	select {
	case <-m.ready:
		return m.loadErr
	default:
		return nil
	}
}

func (m *Manager) await(ctx context.Context) error {
	select {
	case <-m.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if m.loadErr != nil {
		return fmt.Errorf("%w: %w", apperrors.ServiceUnavailable("cart storage unavailable"), m.loadErr)
	}
	return nil
}

// lock waits for the load and takes the state lock. Callers must unlock.
func (m *Manager) lock(ctx context.Context) error {
	if err := m.await(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	return nil
}

func (m *Manager) find(code string) int {
	return slices.IndexFunc(m.lines, func(l Line) bool { return l.ProductCode == code })
}

func (m *Manager) copyLines() []Line {
	return slices.Clone(m.lines)
}

// commit schedules persistence of the current state and returns a copy of it.
// Must be called with mu held.
func (m *Manager) commit() []Line {
	lines := m.copyLines()
	m.schedule(persistOp{snap: Snapshot{Lines: lines}})
	return slices.Clone(lines)
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Code == "":
		return apperrors.InvalidInput("product code is required")
	case p.StockQuantity < 0:
		return apperrors.InvalidInput(fmt.Sprintf("product %s has negative stock", p.Code))
	case p.BasePrice.IsNegative():
		return apperrors.InvalidInput(fmt.Sprintf("product %s has a negative price", p.Code))
	}
	return nil
}

func touch(l *Line, p domain.Product) {
	l.DisplayName = p.DisplayName
	l.ModelLabel = p.ModelLabel
	l.UnitPrice = p.BasePrice
	l.StockSnapshot = p.StockQuantity
}

// AddLine adds qty units of p. The resulting quantity is clamped to the
// product's current stock, which also lowers an existing line whose stock
// dropped; a line left with no units is removed and a product without room
// for any unit is not added at all. A non-empty note replaces the line's note.
func (m *Manager) AddLine(ctx context.Context, p domain.Product, qty int, note string) ([]Line, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	if qty < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	if i := m.find(p.Code); i >= 0 {
		l := &m.lines[i]
		touch(l, p)
		if note != "" {
			l.Note = note
		}
		return m.setAt(i, l.Quantity+qty), nil
	}

	n := clamp(qty, 0, p.StockQuantity)
	if n == 0 {
		return m.copyLines(), nil
	}
	l := Line{ProductCode: p.Code, Quantity: n, Note: note}
	touch(&l, p)
	m.lines = append(m.lines, l)
	return m.commit(), nil
}

// RemoveOneUnit decrements a line by one, removing it when it reaches zero.
func (m *Manager) RemoveOneUnit(ctx context.Context, code string) ([]Line, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	i := m.find(code)
	if i < 0 {
		return m.copyLines(), nil
	}
	m.lines[i].Quantity--
	if m.lines[i].Quantity <= 0 {
		m.lines = slices.Delete(m.lines, i, i+1)
	}
	return m.commit(), nil
}

// AdjustQuantity sets a line to clamp(quantity+delta, 0, stock), removing it
// at zero.
func (m *Manager) AdjustQuantity(ctx context.Context, code string, delta int) ([]Line, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	i := m.find(code)
	if i < 0 {
		return m.copyLines(), nil
	}
	return m.setAt(i, m.lines[i].Quantity+delta), nil
}

// setAt must be called with mu held.
func (m *Manager) setAt(i, qty int) []Line {
	q := clamp(qty, 0, m.lines[i].StockSnapshot)
	if q == 0 {
		m.lines = slices.Delete(m.lines, i, i+1)
	} else {
		m.lines[i].Quantity = q
	}
	return m.commit()
}

// SetQuantity sets an existing line to clamp(qty, 0, stock), removing it at
// zero. When the line is absent, qty is positive and insert is given, a new
// line is created from insert with qty clamped to its stock.
func (m *Manager) SetQuantity(ctx context.Context, code string, qty int, insert *domain.Product) ([]Line, error) {
	if qty < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	if insert != nil {
		if err := validateProduct(*insert); err != nil {
			return nil, err
		}
		if insert.Code != code {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %s does not match line %s", insert.Code, code))
		}
	}
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	if i := m.find(code); i >= 0 {
		return m.setAt(i, qty), nil
	}
	if qty == 0 || insert == nil {
		return m.copyLines(), nil
	}
	n := clamp(qty, 0, insert.StockQuantity)
	if n == 0 {
		return m.copyLines(), nil
	}
	l := Line{ProductCode: code, Quantity: n}
	touch(&l, *insert)
	m.lines = append(m.lines, l)
	return m.commit(), nil
}

// UpdateNote replaces the note of a line. An empty text clears it.
func (m *Manager) UpdateNote(ctx context.Context, code, text string) ([]Line, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	i := m.find(code)
	if i < 0 {
		return m.copyLines(), nil
	}
	m.lines[i].Note = text
	return m.commit(), nil
}

// RefreshStock records fresh stock levels for the lines named in stock. It
// does not clamp, so drops in stock surface through StockWarnings.
func (m *Manager) RefreshStock(ctx context.Context, stock map[string]int) ([]Line, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	changed := false
	for i := range m.lines {
		s, ok := stock[m.lines[i].ProductCode]
		if !ok || s == m.lines[i].StockSnapshot {
			continue
		}
		m.lines[i].StockSnapshot = max(0, s)
		changed = true
	}
	if !changed {
		return m.copyLines(), nil
	}
	return m.commit(), nil
}

// Deduct takes qty units of each listed code out of the cart, removing lines
// that reach zero. Units added after the quantities were read survive. An
// emptied cart erases the persisted copy.
func (m *Manager) Deduct(ctx context.Context, qty map[string]int) ([]Line, error) {
	for code, n := range qty {
		if n < 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("deducted quantity of %s must not be negative", code))
		}
	}
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	kept := m.lines[:0]
	for _, l := range m.lines {
		l.Quantity -= qty[l.ProductCode]
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	clear(m.lines[len(kept):])
	m.lines = kept
	if len(m.lines) == 0 {
		m.lines = nil
		m.schedule(persistOp{clear: true})
		return nil, nil
	}
	return m.commit(), nil
}

// Clear empties the cart and erases the persisted copy.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.lines = nil
	m.schedule(persistOp{clear: true})
	return nil
}

// Lines returns a copy of the cart in insertion order.
func (m *Manager) Lines(ctx context.Context) ([]Line, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.copyLines(), nil
}

// Snapshot returns the cart in its persisted form.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	lines, err := m.Lines(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Lines: lines}, nil
}

// StockWarnings lists every line whose quantity exceeds its stock snapshot.
// It never mutates the cart.
func (m *Manager) StockWarnings(ctx context.Context) ([]StockWarning, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	var warnings []StockWarning
	for _, l := range m.lines {
		if l.Quantity > l.StockSnapshot {
			warnings = append(warnings, newStockWarning(l))
		}
	}
	return warnings, nil
}

// schedule hands op to the writer, replacing any write not yet started.
// After Close the write happens inline.
func (m *Manager) schedule(op persistOp) {
	m.pmu.Lock()
	if m.closed {
		m.pmu.Unlock()
		<-m.done
		m.persist(op)
		return
	}
	m.pending = &op
	m.pmu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) writer() {
	defer close(m.done)
	for {
		select {
		case <-m.wake:
			m.flush()
		case <-m.stop:
			m.flush()
			return
		}
	}
}

func (m *Manager) flush() {
	m.pmu.Lock()
	op := m.pending
	m.pending = nil
	m.pmu.Unlock()

	if op != nil {
		m.persist(*op)
	}
}

func (m *Manager) persist(op persistOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if op.clear {
		err = m.store.Clear(ctx)
	} else {
		err = m.store.Save(ctx, op.snap)
	}
	if err != nil {
		m.logger.Warn("cart persistence failed",
			slog.Bool("clear", op.clear),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes the pending write and stops the writer. Later mutations are
// persisted synchronously.
func (m *Manager) Close(ctx context.Context) error {
	m.once.Do(func() {
		m.pmu.Lock()
		m.closed = true
		m.pmu.Unlock()
		close(m.stop)
	})
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
