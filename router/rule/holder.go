package rule

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/pg-sharding/shrouter/pkg/spqrlog"
)

// Holder publishes snapshots. Readers capture one snapshot per route.
type Holder struct {
	mu      sync.Mutex
	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func NewHolder() *Holder {
	return &Holder{}
}

// Publish stamps s with the next version and makes it current. s must not be
// modified afterwards.
func (h *Holder) Publish(s *Snapshot) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	published := *s
	published.Version = h.version.Inc()
	h.snap.Store(&published)

	spqrlog.Zero.Info().
		Uint64("version", published.Version).
		Int("tables", len(published.Tables)).
		Strs("data-sources", published.DataSources).
		Msg("published sharding rule")
	return &published
}

// Load returns the current snapshot or nil before the first Publish.
func (h *Holder) Load() *Snapshot {
	return h.snap.Load()
}

func (h *Holder) Version() uint64 {
	return h.version.Load()
}
