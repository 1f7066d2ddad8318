package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

const (
	maxSessionIDLen  = 128
	evictCloseBudget = 10 * time.Second
)

// StoreFactory returns the Store backing one session's cart.
type StoreFactory func(sessionID string) Store

// Registry keeps one Manager per cart session, evicting the least recently
// used session beyond its capacity. An evicted Manager flushes its pending
// write and is reloaded from its Store on next use; the reload waits for
// that flush.
type Registry struct {
	mu       sync.Mutex
	cache    *lru.Cache
	evicted  map[string]*Manager
	newStore StoreFactory
	logger   *slog.Logger
	closing  sync.WaitGroup
}

// NewRegistry creates a Registry holding at most size sessions.
func NewRegistry(size int, newStore StoreFactory, logger *slog.Logger) (*Registry, error) {
	r := &Registry{newStore: newStore, logger: logger, evicted: make(map[string]*Manager)}
	cache, err := lru.NewWithEvict(size, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create cart session cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// onEvict runs inside cache calls, which are all made with mu held.
func (r *Registry) onEvict(key, value any) {
	session, m := key.(string), value.(*Manager)
	r.evicted[session] = m
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), evictCloseBudget)
		defer cancel()
		if err := m.Close(ctx); err != nil {
			r.logger.Warn("cart flush on eviction failed",
				slog.String("cart_session", session),
				slog.String("error", err.Error()),
			)
		}
		<-m.done
		r.mu.Lock()
		if r.evicted[session] == m {
			delete(r.evicted, session)
		}
		r.mu.Unlock()
	}()
}

// ValidateSessionID rejects empty or oversized session ids.
func ValidateSessionID(id string) error {
	if id == "" {
		return apperrors.InvalidInput("cart session id is required")
	}
	if len(id) > maxSessionIDLen {
		return apperrors.InvalidInput(fmt.Sprintf("cart session id longer than %d bytes", maxSessionIDLen))
	}
	return nil
}

// Get returns the ready Manager of session, creating and loading it when
// needed. A Manager whose load failed is discarded so the next call retries.
func (r *Registry) Get(ctx context.Context, session string) (*Manager, error) {
	if err := ValidateSessionID(session); err != nil {
		return nil, err
	}

	m, err := r.acquire(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := m.await(ctx); err != nil {
		if m.Err() != nil {
			r.mu.Lock()
			if v, ok := r.cache.Peek(session); ok && v.(*Manager) == m {
				r.cache.Remove(session)
			}
			r.mu.Unlock()
		}
		return nil, err
	}
	return m, nil
}

// acquire returns the cached Manager of session or creates one. A new Manager
// is only created once the previous Manager of the session, if it was
// evicted, has finished writing, so its load sees the final state.
func (r *Registry) acquire(ctx context.Context, session string) (*Manager, error) {
	for {
		r.mu.Lock()
		if v, ok := r.cache.Get(session); ok {
			r.mu.Unlock()
			return v.(*Manager), nil
		}
		if prev, ok := r.evicted[session]; ok {
			select {
			case <-prev.done:
			default:
				r.mu.Unlock()
				select {
				case <-prev.done:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
		}
		m := NewManager(r.newStore(session), r.logger.With(slog.String("cart_session", session)))
		r.cache.Add(session, m)
		r.mu.Unlock()
		return m, nil
	}
}

// Len reports the number of cached sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close evicts every session and waits for their pending writes.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.closing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
