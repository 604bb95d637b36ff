// Package federation implements the operation set of spec.md §4.7:
// sync/share/pullCommunity/remoteSearch/vote/submit across a node's
// local/personal/community stores and named remotes. Per the explicit
// non-goal ("HTTP/WebSocket framing of the federation protocol... the
// operations are in scope, the transport is not"), no wire server or
// client is implemented here — Remote is a plain Go interface, and
// LoopbackRemote demonstrates the contract end-to-end against an
// in-process second Store. Grounded on the teacher's fan-out shard
// dispatch (coreshards.ShardManager-style "try every target, collect
// partial failures") generalized from shard execution to remote search.
package federation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// Peer identifies a remote node. URL is the canonical identity (map key
// and equality key everywhere in this package); Name is display-only.
type Peer struct {
	Name  string
	URL   string
	Token string
}

// Remote is the operation surface a federation peer exposes. No
// implementation here performs network I/O; LoopbackRemote below
// exercises the contract against a second local Store for tests and for
// a "personal" shard wired entirely in-process.
type Remote interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Push(ctx context.Context, p types.Pattern) (types.Pattern, error)
	Pull(ctx context.Context, opts PullOptions) ([]types.Pattern, error)
	Vote(ctx context.Context, patternID, voterID string, direction store.Direction) (types.Votes, error)
	Submit(ctx context.Context, p types.Pattern) (types.Pattern, error)
	Health(ctx context.Context) error
}

// PullOptions narrows a Pull/pullCommunity call.
type PullOptions struct {
	Language   types.Language
	MaxPull    int
	NameFilter string
}

// ShareOptions narrows a share call.
type ShareOptions struct {
	MinCoherency float64
	Patterns     []string
	Tags         []string
}

// Direction mirrors the sync direction for the sync operation.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// SyncReport summarizes a sync call's effect.
type SyncReport struct {
	Pushed  int
	Pulled  int
	DryRun  bool
	Skipped []string
}

// RemoteSearchResult annotates one remote's search outcome.
type RemoteSearchResult struct {
	PeerName  string
	Results   []search.Result
	LatencyMs int64
	Err       error
}

// Node owns a local store plus optional personal/community stores and
// zero or more named remotes (spec.md §4.7 topology).
type Node struct {
	Local     *store.Store
	Personal  *store.Store // nil if not configured
	Community *store.Store // nil if not configured
	Remotes   map[string]Remote

	localSearch *search.Engine
	limits      *RateLimits
}

// NewNode builds a federation Node. localSearch is used for remoteSearch
// fan-out's local contribution and must be built over Local.
func NewNode(local, personal, community *store.Store, localSearch *search.Engine) *Node {
	return &Node{Local: local, Personal: personal, Community: community, Remotes: map[string]Remote{}, localSearch: localSearch, limits: DefaultRateLimits()}
}

// AddRemote registers a peer under its URL (the canonical identity key).
func (n *Node) AddRemote(peer Peer, r Remote) {
	n.Remotes[peer.URL] = r
}

// SetRateLimits overrides the default 5/3/100-per-minute bounds, e.g. with
// values loaded from config.RateLimitConfig.
func (n *Node) SetRateLimits(limits *RateLimits) {
	n.limits = limits
}

// Sync copies patterns between Local and Personal per §4.2 merge rules.
func (n *Node) Sync(ctx context.Context, direction Direction, dryRun bool) (SyncReport, error) {
	if n.Personal == nil {
		return SyncReport{}, fmt.Errorf("federation: no personal store configured")
	}
	report := SyncReport{DryRun: dryRun}

	if direction == DirectionPush || direction == DirectionBoth {
		patterns, err := n.Local.All()
		if err != nil {
			return report, fmt.Errorf("federation: read local patterns: %w", err)
		}
		for _, p := range patterns {
			if dryRun {
				report.Pushed++
				continue
			}
			if _, err := n.Personal.Insert(p, false); err != nil {
				report.Skipped = append(report.Skipped, fmt.Sprintf("push %s: %v", p.Name, err))
				continue
			}
			report.Pushed++
		}
	}

	if direction == DirectionPull || direction == DirectionBoth {
		patterns, err := n.Personal.All()
		if err != nil {
			return report, fmt.Errorf("federation: read personal patterns: %w", err)
		}
		for _, p := range patterns {
			if dryRun {
				report.Pulled++
				continue
			}
			if _, err := n.Local.Insert(p, false); err != nil {
				report.Skipped = append(report.Skipped, fmt.Sprintf("pull %s: %v", p.Name, err))
				continue
			}
			report.Pulled++
		}
	}

	return report, nil
}

// Share pushes selected patterns from Local to Community, restricted by
// default to patterns with tests and coherency >= 0.7.
func (n *Node) Share(ctx context.Context, opts ShareOptions) (int, error) {
	if n.Community == nil {
		return 0, fmt.Errorf("federation: no community store configured")
	}
	minCoherency := opts.MinCoherency
	if minCoherency <= 0 {
		minCoherency = 0.7
	}

	patterns, err := n.Local.Iter(store.IterFilter{MinCoherency: minCoherency})
	if err != nil {
		return 0, fmt.Errorf("federation: read local patterns: %w", err)
	}

	allowed := toSet(opts.Patterns)
	tagFilter := toSet(opts.Tags)

	shared := 0
	for _, p := range patterns {
		if p.TestCode == "" {
			continue
		}
		if len(allowed) > 0 && !allowed[p.Name] {
			continue
		}
		if len(tagFilter) > 0 && !anyTagMatches(p.Tags, tagFilter) {
			continue
		}
		if _, err := n.Community.Insert(p, false); err != nil {
			continue
		}
		shared++
	}
	return shared, nil
}

// PullCommunity fetches new Community patterns into Local.
func (n *Node) PullCommunity(ctx context.Context, opts PullOptions) (int, error) {
	if n.Community == nil {
		return 0, fmt.Errorf("federation: no community store configured")
	}
	filter := store.IterFilter{Language: opts.Language}
	patterns, err := n.Community.Iter(filter)
	if err != nil {
		return 0, fmt.Errorf("federation: read community patterns: %w", err)
	}

	maxPull := opts.MaxPull
	if maxPull <= 0 {
		maxPull = len(patterns)
	}

	pulled := 0
	for _, p := range patterns {
		if pulled >= maxPull {
			break
		}
		if opts.NameFilter != "" && p.Name != opts.NameFilter {
			continue
		}
		if _, err := n.Local.Insert(p, false); err != nil {
			continue
		}
		pulled++
	}
	return pulled, nil
}

// RemoteSearch fans out query across every reachable remote plus Local,
// merging results. A remote failure is reported per-remote, never fatal.
func (n *Node) RemoteSearch(ctx context.Context, query string, opts search.Options) ([]RemoteSearchResult, error) {
	if !n.limits.allowRead(time.Now()) {
		return nil, ErrRateLimited
	}
	results := make([]RemoteSearchResult, 0, len(n.Remotes)+1)

	if n.localSearch != nil {
		start := time.Now()
		local, err := n.localSearch.Search(ctx, query, opts)
		results = append(results, RemoteSearchResult{PeerName: "local", Results: local, LatencyMs: time.Since(start).Milliseconds(), Err: err})
	}

	type indexed struct {
		idx int
		res RemoteSearchResult
	}
	out := make([]indexed, len(n.Remotes))
	names := make([]string, 0, len(n.Remotes))
	for name := range n.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		remote := n.Remotes[name]
		g.Go(func() error {
			start := time.Now()
			res, err := remote.Search(gctx, query, opts)
			out[i] = indexed{idx: i, res: RemoteSearchResult{PeerName: name, Results: res, LatencyMs: time.Since(start).Milliseconds(), Err: err}}
			return nil // per-remote errors are carried in the result, not propagated
		})
	}
	_ = g.Wait()

	for _, o := range out {
		results = append(results, o.res)
	}
	return results, nil
}

// Vote records a vote against Local with reputation-weighted scoring.
func (n *Node) Vote(ctx context.Context, patternID, voterID string, direction store.Direction) (types.Votes, error) {
	return n.Local.Vote(patternID, voterID, direction)
}

// Submit checks AcceptanceGate (covenantSealed=true and
// coherencyScore.total >= 0.55) against the pattern's recorded
// CovenantSealed and CoherencyScore, then inserts it into Local with the
// usual merge-on-conflict. It does not run the Coherency Evaluator on the
// submitted code; the recorded values are taken as given.
func (n *Node) Submit(ctx context.Context, p types.Pattern) (types.Pattern, error) {
	if !n.limits.allowSubmission(time.Now()) {
		return types.Pattern{}, ErrRateLimited
	}
	if !AcceptanceGate(p) {
		return types.Pattern{}, fmt.Errorf("federation: submission rejected acceptance gate (covenantSealed=%v coherency=%.2f)", p.CovenantSealed, p.CoherencyScore.Total)
	}
	result, err := n.Local.Insert(p, false)
	if err != nil {
		return types.Pattern{}, err
	}
	return result.Pattern, nil
}

// Delete removes patternID from Local, rate-limited per spec.md §5.
func (n *Node) Delete(ctx context.Context, patternID string) error {
	if !n.limits.allowDeletion(time.Now()) {
		return ErrRateLimited
	}
	return n.Local.Delete(patternID)
}

// AcceptanceGate is spec.md §4.7's acceptance rule: covenantSealed=true
// and coherencyScore.total >= 0.55.
func AcceptanceGate(p types.Pattern) bool {
	return p.CovenantSealed && p.CoherencyScore.Total >= 0.55
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

func anyTagMatches(tags []string, filter map[string]bool) bool {
	for _, t := range tags {
		if filter[t] {
			return true
		}
	}
	return false
}
