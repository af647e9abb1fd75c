package state

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/logger"
)

// flushTimeout bounds the final flush on shutdown.
const flushTimeout = 5 * time.Second

// Persister saves zone snapshots in the background. Only the latest
// snapshot of each zone is kept while a save is pending.
type Persister struct {
	// repo stores the snapshots.
	repo Repository
	// mu protects pending.
	mu sync.Mutex
	// pending holds the latest unsaved snapshot per zone.
	pending map[string]*domain.Snapshot
	// wake signals Run that pending is not empty.
	wake chan struct{}
}

// NewPersister creates a persister writing to repo.
func NewPersister(repo Repository) *Persister {
	return &Persister{
		repo:    repo,
		pending: make(map[string]*domain.Snapshot),
		wake:    make(chan struct{}, 1),
	}
}

// Publish queues a snapshot for saving. It never blocks.
func (p *Persister) Publish(settings *domain.Settings, snapshot *domain.Snapshot) {
	p.mu.Lock()
	p.pending[settings.ID] = snapshot.Clone()
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run saves queued snapshots until ctx is canceled, then flushes what is left.
func (p *Persister) Run(ctx context.Context) {
	ctx = logger.WithName(ctx, "persister")

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			p.Flush(flushCtx)
			cancel()

			return
		case <-p.wake:
			p.Flush(ctx)
		}
	}
}

// Flush saves every pending snapshot. Failed saves are logged and dropped.
func (p *Persister) Flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]*domain.Snapshot, len(batch))
	p.mu.Unlock()

	for _, zoneID := range slices.Sorted(maps.Keys(batch)) {
		if err := p.repo.Save(ctx, zoneID, batch[zoneID]); err != nil {
			logger.ErrorKV(ctx, "Failed to save zone state", "zone_id", zoneID, "error", err)
		}
	}
}
