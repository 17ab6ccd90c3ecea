package refresh

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/robertmeta/feed-agg/store"
)

// Sweeper is a batch reconciliation pass that collapses items sharing a
// fingerprint down to one canonical survivor. The refresh engine's unique
// index normally prevents duplicates; the sweeper repairs data that entered
// the store outside that guard, such as imported history.
type Sweeper struct {
	store *store.Store
	log   *slog.Logger
}

// NewSweeper creates a sweeper. A nil logger discards sweep logs.
func NewSweeper(st *store.Store, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweeper{store: st, log: logger.With("component", "sweeper")}
}

// Sweep deletes all but one item per fingerprint and returns the number
// removed. The survivor is the smallest item ID in each group, a
// deterministic tie-break rather than a recency policy.
func (s *Sweeper) Sweep() (int, error) {
	groups, err := s.store.DuplicateGroups()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, g := range groups {
		n, err := s.store.DeleteDuplicates(g.Fingerprint, g.KeepID)
		if err != nil {
			return removed, fmt.Errorf("failed to sweep fingerprint %s: %w", g.Fingerprint, err)
		}
		removed += n
	}

	if removed > 0 {
		s.log.Info("sweep complete", "removed", removed, "groups", len(groups))
	}
	return removed, nil
}
