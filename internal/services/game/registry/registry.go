package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

// Defaults applied by Config.normalized.
const (
	defaultFreshnessTTL    = 5 * time.Second
	defaultEndedGrace      = time.Hour
	defaultConversionStale = time.Hour
	defaultJanitorInterval = time.Minute
	defaultJanitorBatch    = 64
	defaultCacheMaxCost    = 32 << 20
	defaultCacheCounters   = 100_000
)

// Config wires the registry's collaborators and tuning knobs.
type Config struct {
	// Store is consulted by the janitor for GC candidates. The lock, hub,
	// and cache surfaces work without it.
	Store storage.RoomStore
	// FreshnessTTL bounds how long a cached room may serve reads.
	FreshnessTTL time.Duration
	// EndedGrace is how long ended rooms stay queryable before GC.
	EndedGrace time.Duration
	// ConversionStale is how long an unfinished conversion may sit before
	// its room counts as abandoned.
	ConversionStale time.Duration
	// JanitorInterval is the GC sweep cadence.
	JanitorInterval time.Duration
	// JanitorBatch caps rooms reaped per sweep.
	JanitorBatch int
	// CacheMaxCost bounds the room cache's total byte cost.
	CacheMaxCost int64
}

func (c Config) normalized() Config {
	if c.FreshnessTTL <= 0 {
		c.FreshnessTTL = defaultFreshnessTTL
	}
	if c.EndedGrace <= 0 {
		c.EndedGrace = defaultEndedGrace
	}
	if c.ConversionStale <= 0 {
		c.ConversionStale = defaultConversionStale
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}
	if c.JanitorBatch <= 0 {
		c.JanitorBatch = defaultJanitorBatch
	}
	if c.CacheMaxCost <= 0 {
		c.CacheMaxCost = defaultCacheMaxCost
	}
	return c
}

type entry struct {
	lock chan struct{}
	hub  *Hub
}

// Registry tracks live rooms: their submit locks, their subscriber hubs, and
// a freshness-bounded read cache in front of the store.
type Registry struct {
	cfg   Config
	cache *ristretto.Cache[string, room.Room]

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a registry. Callers own teardown via Close.
func New(cfg Config) (*Registry, error) {
	cfg = cfg.normalized()
	cache, err := ristretto.NewCache(&ristretto.Config[string, room.Room]{
		NumCounters: defaultCacheCounters,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("build room cache: %w", err)
	}
	return &Registry{
		cfg:     cfg,
		cache:   cache,
		entries: make(map[string]*entry),
	}, nil
}

// Lock acquires the room's submit lock, blocking until it is free or ctx
// ends. Waiters are served in arrival order; a canceled waiter acquires
// nothing and leaves no side effects.
func (r *Registry) Lock(ctx context.Context, roomID string) (release func(), err error) {
	e := r.entry(roomID)
	select {
	case e.lock <- struct{}{}:
		return func() { <-e.lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Hub returns the room's subscriber hub, creating it on first use.
func (r *Registry) Hub(roomID string) *Hub {
	return r.entry(roomID).hub
}

// CachedRoom returns the cached snapshot when it is still within the
// freshness window. Cached rooms are read-only snapshots; callers must not
// mutate the returned value's documents in place.
func (r *Registry) CachedRoom(roomID string) (room.Room, bool) {
	return r.cache.Get(roomID)
}

// CacheRoom stores a committed snapshot under the freshness TTL.
func (r *Registry) CacheRoom(rm room.Room) {
	r.cache.SetWithTTL(rm.RoomID, rm, roomCost(rm), r.cfg.FreshnessTTL)
}

// InvalidateRoom drops the cached snapshot after a write.
func (r *Registry) InvalidateRoom(roomID string) {
	r.cache.Del(roomID)
}

// Teardown forgets a room's live bookkeeping, closes its hub, and drops its
// cache entry. Lock holders in flight keep their handle; new acquisitions
// start fresh.
func (r *Registry) Teardown(roomID string) {
	r.mu.Lock()
	e, ok := r.entries[roomID]
	if ok {
		delete(r.entries, roomID)
		metrics.ActiveRooms.Set(float64(len(r.entries)))
	}
	r.mu.Unlock()

	r.cache.Del(roomID)
	if ok {
		e.hub.Close()
	}
}

// Close stops serving: every hub is closed and the cache is released.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	hubs := make([]*Hub, 0, len(r.entries))
	for id, e := range r.entries {
		hubs = append(hubs, e.hub)
		delete(r.entries, id)
	}
	metrics.ActiveRooms.Set(0)
	r.mu.Unlock()

	for _, hub := range hubs {
		hub.Close()
	}
	r.cache.Close()
}

// StartJanitor launches the GC loop and returns a stop function that blocks
// until the loop exits.
func (r *Registry) StartJanitor(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.reap(ctx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// reap deletes rooms whose lifecycle ended before the grace cutoff and rooms
// whose conversion never reached a terminal status.
func (r *Registry) reap(ctx context.Context) {
	if r.cfg.Store == nil {
		return
	}
	now := time.Now().UTC()
	ids, err := r.cfg.Store.ListExpiredRooms(ctx, now.Add(-r.cfg.EndedGrace), now.Add(-r.cfg.ConversionStale), r.cfg.JanitorBatch)
	if err != nil {
		log.Printf("room janitor: list expired rooms: %v", err)
		return
	}
	for _, id := range ids {
		if err := r.cfg.Store.DeleteRoom(ctx, id); err != nil {
			log.Printf("room janitor: delete room %s: %v", id, err)
			continue
		}
		r.Teardown(id)
	}
}

func (r *Registry) entry(roomID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if ok {
		return e
	}
	e = &entry{
		lock: make(chan struct{}, 1),
		hub:  newHub(),
	}
	r.entries[roomID] = e
	metrics.ActiveRooms.Set(float64(len(r.entries)))
	return e
}

// roomCost approximates the cached snapshot's resident size.
func roomCost(rm room.Room) int64 {
	cost := int64(len(rm.State)+len(rm.Metadata)) + 128
	for _, p := range rm.Players {
		cost += int64(len(p.Profile)) + 64
	}
	return cost
}
