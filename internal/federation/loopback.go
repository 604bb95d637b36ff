package federation

import (
	"context"
	"fmt"

	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// LoopbackRemote satisfies Remote against an in-process Store and Search
// Engine, so the federation contract can be exercised end-to-end without
// a transport (the non-goal explicitly leaves HTTP/WebSocket framing
// out). A real peer would wrap an HTTP client instead; only this struct
// would need to change, never Node's callers.
type LoopbackRemote struct {
	Name   string
	store  *store.Store
	search *search.Engine
}

// NewLoopbackRemote wraps s (and a Search Engine over it) as a Remote.
func NewLoopbackRemote(name string, s *store.Store, se *search.Engine) *LoopbackRemote {
	return &LoopbackRemote{Name: name, store: s, search: se}
}

func (r *LoopbackRemote) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return r.search.Search(ctx, query, opts)
}

func (r *LoopbackRemote) Push(ctx context.Context, p types.Pattern) (types.Pattern, error) {
	result, err := r.store.Insert(p, false)
	if err != nil {
		return types.Pattern{}, fmt.Errorf("loopback %s: push: %w", r.Name, err)
	}
	return result.Pattern, nil
}

func (r *LoopbackRemote) Pull(ctx context.Context, opts PullOptions) ([]types.Pattern, error) {
	patterns, err := r.store.Iter(store.IterFilter{Language: opts.Language})
	if err != nil {
		return nil, fmt.Errorf("loopback %s: pull: %w", r.Name, err)
	}
	maxPull := opts.MaxPull
	if maxPull <= 0 || maxPull > len(patterns) {
		maxPull = len(patterns)
	}
	out := make([]types.Pattern, 0, maxPull)
	for _, p := range patterns {
		if len(out) >= maxPull {
			break
		}
		if opts.NameFilter != "" && p.Name != opts.NameFilter {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *LoopbackRemote) Vote(ctx context.Context, patternID, voterID string, direction store.Direction) (types.Votes, error) {
	return r.store.Vote(patternID, voterID, direction)
}

func (r *LoopbackRemote) Submit(ctx context.Context, p types.Pattern) (types.Pattern, error) {
	if !AcceptanceGate(p) {
		return types.Pattern{}, fmt.Errorf("loopback %s: submission rejected acceptance gate", r.Name)
	}
	result, err := r.store.Insert(p, false)
	if err != nil {
		return types.Pattern{}, err
	}
	return result.Pattern, nil
}

func (r *LoopbackRemote) Health(ctx context.Context) error {
	_, err := r.store.Stats()
	return err
}
