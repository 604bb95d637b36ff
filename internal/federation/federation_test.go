package federation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sealedPattern(name string, coherency float64) types.Pattern {
	return types.Pattern{
		Name: name, Language: types.LanguageGo,
		Code:             "func " + name + "() {}",
		Description:      "demo pattern",
		GenerationMethod: types.GenerationSeed,
		CovenantSealed:   true,
		CoherencyScore:   types.CoherencyScore{Total: coherency},
	}
}

func TestSyncPushAndPull(t *testing.T) {
	local := openTestStore(t)
	personal := openTestStore(t)
	_, err := local.Insert(sealedPattern("alpha", 0.8), false)
	require.NoError(t, err)

	node := NewNode(local, personal, nil, nil)
	report, err := node.Sync(context.Background(), DirectionPush, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Pushed)

	_, err = personal.GetByName("alpha", types.LanguageGo)
	require.NoError(t, err)
}

func TestSyncDryRunDoesNotWrite(t *testing.T) {
	local := openTestStore(t)
	personal := openTestStore(t)
	_, err := local.Insert(sealedPattern("alpha", 0.8), false)
	require.NoError(t, err)

	node := NewNode(local, personal, nil, nil)
	report, err := node.Sync(context.Background(), DirectionPush, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.Pushed)
	require.True(t, report.DryRun)

	_, err = personal.GetByName("alpha", types.LanguageGo)
	require.Error(t, err)
}

func TestShareRequiresTestsAndCoherency(t *testing.T) {
	local := openTestStore(t)
	community := openTestStore(t)

	withTests := sealedPattern("tested", 0.8)
	withTests.TestCode = "func TestTested(t *testing.T) {}"
	_, err := local.Insert(withTests, false)
	require.NoError(t, err)

	noTests := sealedPattern("untested", 0.9)
	_, err = local.Insert(noTests, false)
	require.NoError(t, err)

	node := NewNode(local, nil, community, nil)
	n, err := node.Share(context.Background(), ShareOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = community.GetByName("tested", types.LanguageGo)
	require.NoError(t, err)
	_, err = community.GetByName("untested", types.LanguageGo)
	require.Error(t, err)
}

func TestPullCommunityRespectsMaxPull(t *testing.T) {
	local := openTestStore(t)
	community := openTestStore(t)
	for _, name := range []string{"one", "two", "three"} {
		_, err := community.Insert(sealedPattern(name, 0.8), false)
		require.NoError(t, err)
	}

	node := NewNode(local, nil, community, nil)
	n, err := node.PullCommunity(context.Background(), PullOptions{MaxPull: 2})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRemoteSearchReportsPartialFailure(t *testing.T) {
	local := openTestStore(t)
	_, err := local.Insert(sealedPattern("alpha", 0.8), false)
	require.NoError(t, err)
	localSearch := search.New(local, nil)

	remoteStore := openTestStore(t)
	_, err = remoteStore.Insert(sealedPattern("beta", 0.8), false)
	require.NoError(t, err)
	remoteSearch := search.New(remoteStore, nil)

	node := NewNode(local, nil, nil, localSearch)
	node.AddRemote(Peer{Name: "good", URL: "loopback://good"}, NewLoopbackRemote("good", remoteStore, remoteSearch))
	node.AddRemote(Peer{Name: "bad", URL: "loopback://bad"}, failingRemote{})

	results, err := node.RemoteSearch(context.Background(), "alpha", search.Options{})
	require.NoError(t, err)

	var sawLocal, sawGood, sawBadErr bool
	for _, r := range results {
		switch r.PeerName {
		case "local":
			sawLocal = true
		case "good":
			sawGood = true
		case "bad":
			sawBadErr = r.Err != nil
		}
	}
	require.True(t, sawLocal)
	require.True(t, sawGood)
	require.True(t, sawBadErr)
}

type failingRemote struct{}

func (failingRemote) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return nil, assertErr
}
func (failingRemote) Push(ctx context.Context, p types.Pattern) (types.Pattern, error) {
	return types.Pattern{}, assertErr
}
func (failingRemote) Pull(ctx context.Context, opts PullOptions) ([]types.Pattern, error) {
	return nil, assertErr
}
func (failingRemote) Vote(ctx context.Context, patternID, voterID string, direction store.Direction) (types.Votes, error) {
	return types.Votes{}, assertErr
}
func (failingRemote) Submit(ctx context.Context, p types.Pattern) (types.Pattern, error) {
	return types.Pattern{}, assertErr
}
func (failingRemote) Health(ctx context.Context) error { return assertErr }

var assertErr = &simpleErr{"remote unreachable"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }

func TestSubmitEnforcesAcceptanceGate(t *testing.T) {
	local := openTestStore(t)
	node := NewNode(local, nil, nil, nil)

	unsealed := sealedPattern("weak", 0.9)
	unsealed.CovenantSealed = false
	_, err := node.Submit(context.Background(), unsealed)
	require.Error(t, err)

	lowScore := sealedPattern("low", 0.2)
	_, err = node.Submit(context.Background(), lowScore)
	require.Error(t, err)

	good := sealedPattern("good", 0.6)
	out, err := node.Submit(context.Background(), good)
	require.NoError(t, err)
	require.Equal(t, "good", out.Name)
}

func TestSubmitRateLimited(t *testing.T) {
	local := openTestStore(t)
	node := NewNode(local, nil, nil, nil)
	node.limits = &RateLimits{
		submissions: newSlidingLimiter(1),
		deletions:   newSlidingLimiter(3),
		reads:       newSlidingLimiter(100),
	}

	_, err := node.Submit(context.Background(), sealedPattern("first", 0.8))
	require.NoError(t, err)

	_, err = node.Submit(context.Background(), sealedPattern("second", 0.8))
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestLoopbackRemoteVoteAndReputation(t *testing.T) {
	s := openTestStore(t)
	p, err := s.Insert(sealedPattern("votable", 0.8), false)
	require.NoError(t, err)
	se := search.New(s, nil)
	remote := NewLoopbackRemote("peer", s, se)

	_, err = remote.Vote(context.Background(), p.Pattern.ID, "voter-1", store.DirectionUp)
	require.NoError(t, err)

	require.NoError(t, ReconcileReputation(s, p.Pattern.ID, 0.5))
	voter, err := s.Voter("voter-1")
	require.NoError(t, err)
	require.Greater(t, voter.Reputation, 1.0)
}

func TestReconcileReputationSkipsDisagreeingVotes(t *testing.T) {
	s := openTestStore(t)
	p, err := s.Insert(sealedPattern("votable2", 0.8), false)
	require.NoError(t, err)

	_, err = s.Vote(p.Pattern.ID, "voter-down", store.DirectionDown)
	require.NoError(t, err)

	require.NoError(t, ReconcileReputation(s, p.Pattern.ID, 0.5))
	voter, err := s.Voter("voter-down")
	require.NoError(t, err)
	require.Equal(t, 1.0, voter.Reputation)
}

func TestSlidingLimiterExpiresOldEntries(t *testing.T) {
	l := newSlidingLimiter(1)
	base := time.Now()
	require.True(t, l.allow(base))
	require.False(t, l.allow(base.Add(10*time.Second)))
	require.True(t, l.allow(base.Add(2*time.Minute)))
}
