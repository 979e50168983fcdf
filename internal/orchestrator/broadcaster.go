package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/godseye3002/godseye/internal/cache"
	"github.com/godseye3002/godseye/internal/notify"
	"github.com/godseye3002/godseye/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const statusEntryTTL = 30 * time.Minute

// Broadcaster keeps every observer of a (product, engine) pair converged on
// the same status without redundant recomputation. The cache holds the last
// snapshot any observer saw; it is a warm-start convenience, never the source
// of truth. Every subscription and every push notification is re-verified
// against the reconciler before the cache is updated, and concurrent
// verifications for the same key are coalesced into one in-flight reconcile.
type Broadcaster struct {
	cache      cache.Cache
	reconciler *Reconciler
	notifier   notify.Notifier
	group      singleflight.Group

	mu     sync.Mutex
	subs   map[string]map[int]func(models.ProgressSnapshot)
	nextID int
}

// NewBroadcaster creates a Broadcaster. Call Start to begin consuming change
// notifications.
func NewBroadcaster(c cache.Cache, reconciler *Reconciler, notifier notify.Notifier) *Broadcaster {
	return &Broadcaster{
		cache:      c,
		reconciler: reconciler,
		notifier:   notifier,
		subs:       make(map[string]map[int]func(models.ProgressSnapshot)),
	}
}

// Start begins consuming change notifications until ctx is cancelled. A push
// event is never trusted as proof of completion, since it may fire for
// partial writes; each one triggers a reconcile and only the reconciler's
// verdict reaches the cache and the observers.
func (b *Broadcaster) Start(ctx context.Context) error {
	changes, err := b.notifier.Listen(ctx)
	if err != nil {
		return err
	}
	go func() {
		for change := range changes {
			b.refresh(ctx, change.ProductID, change.Engine)
		}
	}()
	return nil
}

// Subscribe registers onUpdate for (productID, engine) and returns an
// unsubscribe func. The cached snapshot, when present, is delivered
// immediately so returning observers do not flash back to an unknown state;
// a live verification runs concurrently and issues a second update if the
// cache was stale. The shared cache entry outlives individual subscribers.
func (b *Broadcaster) Subscribe(ctx context.Context, productID uuid.UUID, engine string, onUpdate func(models.ProgressSnapshot)) func() {
	key := statusKey(productID, engine)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]func(models.ProgressSnapshot))
	}
	b.subs[key][id] = onUpdate
	b.mu.Unlock()

	if entry, ok, err := b.cache.GetStatusEntry(ctx, productID, engine); err == nil && ok {
		onUpdate(entry.Snapshot)
	} else if err != nil {
		slog.Warn("status cache read failed", "product_id", productID, "engine", engine, "error", err)
	}

	go b.refresh(context.WithoutCancel(ctx), productID, engine)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[key], id)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}
}

// refresh reconciles the pair's status and, when it disagrees with the cached
// entry, overwrites the cache and notifies every subscriber. Concurrent calls
// for one key share a single reconcile.
func (b *Broadcaster) refresh(ctx context.Context, productID uuid.UUID, engine string) {
	key := statusKey(productID, engine)

	v, err, _ := b.group.Do(key, func() (any, error) {
		return b.reconciler.Progress(ctx, productID, engine), nil
	})
	if err != nil {
		return
	}
	snapshot := v.(models.ProgressSnapshot)

	cached, ok, err := b.cache.GetStatusEntry(ctx, productID, engine)
	if err != nil {
		slog.Warn("status cache read failed", "product_id", productID, "engine", engine, "error", err)
	}
	if ok && cached.Snapshot == snapshot {
		return
	}

	entry := cache.StatusEntry{Snapshot: snapshot, UpdatedAt: time.Now().UTC()}
	if err := b.cache.SetStatusEntry(ctx, productID, engine, entry, statusEntryTTL); err != nil {
		slog.Warn("status cache write failed", "product_id", productID, "engine", engine, "error", err)
	}

	b.mu.Lock()
	callbacks := make([]func(models.ProgressSnapshot), 0, len(b.subs[key]))
	for _, cb := range b.subs[key] {
		callbacks = append(callbacks, cb)
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb(snapshot)
	}
}

func statusKey(productID uuid.UUID, engine string) string {
	return productID.String() + ":" + engine
}
