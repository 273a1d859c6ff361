package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Pruner removes permanently-failed tokens from the registry. One update per
// user: all of that user's flagged tokens, grouped by scope, go out as a
// single atomic multi-field write. Different users are pruned concurrently.
type Pruner struct {
	store       dispatch.RegistryStore
	concurrency int
	logger      *slog.Logger
}

func NewPruner(store dispatch.RegistryStore, concurrency int, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:       store,
		concurrency: concurrency,
		logger:      logger.With("component", "Pruner"),
	}
}

// Prune returns the number of tokens handed to the registry for removal.
// Per-user failures are logged and never cancel sibling updates; removing a
// token that is already absent is a no-op at the store.
func (p *Pruner) Prune(ctx context.Context, set push.PruneSet, tokenToScope map[string]string) int {
	var pruned atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(p.concurrency)

	for userID, tokens := range set {
		byScope := make(map[string][]string)
		for _, token := range tokens {
			scope, ok := tokenToScope[token]
			if !ok {
				p.logger.Warn("no scope recorded for dead token, skipping", "user_id", userID)
				continue
			}
			byScope[scope] = append(byScope[scope], token)
		}
		if len(byScope) == 0 {
			continue
		}

		count := 0
		for _, scoped := range byScope {
			count += len(scoped)
		}
		g.Go(func() error {
			if err := p.store.RemoveTokens(ctx, userID, byScope); err != nil {
				p.logger.Warn("registry prune failed", "user_id", userID, "err", err)
				return nil
			}
			pruned.Add(int64(count))
			p.logger.Info("pruned dead tokens", "user_id", userID, "count", count)
			return nil
		})
	}

	_ = g.Wait()
	return int(pruned.Load())
}
