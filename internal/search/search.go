package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/remembrance-oracle/oracle-core/internal/embedding"
	"github.com/remembrance-oracle/oracle-core/internal/logging"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// Weights for blending the lexical and semantic scores into one ranked
// result set (spec.md §4.3 hybrid search).
const (
	lexicalBlendWeight  = 0.55
	semanticBlendWeight = 0.45
)

// Penalty tuning for the ranking pass (spec.md §4.3): staleness ramps
// linearly from 0 at 30 days of no use to 0.15 at 180 days; over-evolution
// costs 0.05 per child fork past the third, capped at 0.20.
const (
	staleFloor            = 30 * 24 * time.Hour
	staleCeiling          = 180 * 24 * time.Hour
	maxStalenessPenalty   = 0.15
	overEvolvedThreshold  = 3
	perChildEvolvePenalty = 0.05
	maxEvolvePenalty      = 0.20
)

// Engine is the Search Engine component: hybrid lexical+semantic search
// with ranking penalties, backed by a Store and an embedding.Engine.
type Engine struct {
	store   *store.Store
	embed   embedding.Engine
	lexical *LexicalIndex
}

// New builds a Search Engine over s. embed may be nil, in which case
// semantic scoring is skipped and results are lexical-only.
func New(s *store.Store, embed embedding.Engine) *Engine {
	return &Engine{store: s, embed: embed, lexical: NewLexicalIndex(30 * time.Second)}
}

// Result is one ranked hit from Search.
type Result struct {
	Pattern       types.Pattern
	LexicalScore  float64
	SemanticScore float64
	BlendedScore  float64
	RankedScore   float64
	MatchedTerms  []string
}

// Mode selects which half of the lexical/semantic blend a Search call
// computes (spec.md §4.3): lexical-only, semantic-only, or the weighted
// hybrid blend.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Options narrows and tunes a Search call.
type Options struct {
	Limit        int
	Language     types.Language // "" = no filter; overridden by Intent.LanguageHint when present
	MinCoherency float64
	Mode         Mode // "" defaults to ModeHybrid
}

// Search runs the query in opts.Mode (hybrid by default) and returns
// results ordered by RankedScore descending.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	timer := logging.StartTimer("search.Search")
	defer timer.Stop()

	if err := e.lexical.Ensure(e.store); err != nil {
		return nil, fmt.Errorf("search: build lexical index: %w", err)
	}

	return e.searchIntent(ctx, query, ParseIntent(query), opts)
}

// searchIntent runs ranking over an already-parsed Intent, so smartSearch
// can re-rank a spelling-corrected or language-widened Intent without
// re-parsing the raw query text.
func (e *Engine) searchIntent(ctx context.Context, query string, in Intent, opts Options) ([]Result, error) {
	language := opts.Language
	if in.LanguageHint != "" {
		language = types.Language(in.LanguageHint)
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	// Over-fetch before filtering/ranking so penalties can reorder the
	// final cut rather than just trim a pre-penalty top-N.
	fetchLimit := limit * 4

	var lexicalHits []LexicalHit
	if mode != ModeSemantic {
		lexicalHits = e.lexical.Search(in, fetchLimit)
	}

	semanticScores := map[string]float64{}
	if mode != ModeLexical && e.embed != nil {
		var err error
		semanticScores, err = e.semanticScores(ctx, query, fetchLimit)
		if err != nil {
			logging.Get(logging.CategorySearch).Warn("semantic search unavailable, falling back to lexical-only: %v", err)
		}
	}

	byID := map[string]*Result{}
	for _, h := range lexicalHits {
		byID[h.Pattern.ID] = &Result{Pattern: h.Pattern, LexicalScore: h.Score, MatchedTerms: h.MatchedTerms}
	}
	for id, score := range semanticScores {
		r, ok := byID[id]
		if !ok {
			p, err := e.store.Get(id)
			if err != nil {
				continue
			}
			r = &Result{Pattern: p}
			byID[id] = r
		}
		r.SemanticScore = score
	}

	results := make([]Result, 0, len(byID))
	for _, r := range byID {
		if language != "" && r.Pattern.Language != language {
			continue
		}
		if r.Pattern.CoherencyScore.Total < opts.MinCoherency {
			continue
		}
		switch mode {
		case ModeLexical:
			r.BlendedScore = normalize(r.LexicalScore)
		case ModeSemantic:
			r.BlendedScore = r.SemanticScore
		default:
			r.BlendedScore = lexicalBlendWeight*normalize(r.LexicalScore) + semanticBlendWeight*r.SemanticScore
		}
		r.RankedScore = e.applyPenalties(r.BlendedScore, r.Pattern)
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].RankedScore > results[j].RankedScore })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func normalize(score float64) float64 {
	// Lexical scores are unbounded sums of term weights; squash into
	// roughly [0,1] so the blend with a cosine-similarity semantic score
	// (already in [0,1] after clamping negatives) is not lexical-dominated.
	if score <= 0 {
		return 0
	}
	return score / (score + 1.0)
}

func (e *Engine) semanticScores(ctx context.Context, query string, limit int) (map[string]float64, error) {
	queryVec, err := e.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if e.store.VectorSearchAvailable() {
		data, err := json.Marshal(queryVec)
		if err == nil {
			ids, err := e.store.NearestVectors(string(data), limit)
			if err == nil {
				out := make(map[string]float64, len(ids))
				for i, id := range ids {
					// vec0 returns nearest-first; synthesize a descending score.
					out[id] = 1.0 - float64(i)/float64(len(ids)+1)
				}
				return out, nil
			}
			logging.Get(logging.CategorySearch).Warn("vec0 ANN query failed, falling back to brute force: %v", err)
		}
	}

	vectors, err := e.store.AllVectors()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(vectors))
	for id, v := range vectors {
		sim, err := embedding.CosineSimilarity(queryVec, v)
		if err != nil {
			continue
		}
		if sim < 0 {
			sim = 0
		}
		out[id] = sim
	}
	return out, nil
}

// applyPenalties discounts blended scores for stale patterns (not used
// recently) and over-evolved lineages (too many descendants suggest the
// pattern is a churny base rather than a settled one), per spec.md §4.3.
func (e *Engine) applyPenalties(score float64, p types.Pattern) float64 {
	penalty := 0.0

	if !p.LastUsedAt.IsZero() {
		age := time.Since(p.LastUsedAt)
		if age > staleFloor {
			span := float64(staleCeiling - staleFloor)
			frac := float64(age-staleFloor) / span
			if frac > 1 {
				frac = 1
			}
			penalty += frac * maxStalenessPenalty
		}
	}

	children := e.store.Lineage().ChildCount(p.ID)
	if children > overEvolvedThreshold {
		evolvePenalty := float64(children-overEvolvedThreshold) * perChildEvolvePenalty
		if evolvePenalty > maxEvolvePenalty {
			evolvePenalty = maxEvolvePenalty
		}
		penalty += evolvePenalty
	}

	adjusted := score - penalty
	if adjusted < 0 {
		adjusted = 0
	}
	return adjusted
}

// FederatedStats summarizes the local collection for a federation
// search-stats response (spec.md §4.7 federatedSearch "stats-only").
type FederatedStats struct {
	TotalPatterns int
	AvgCoherency  float64
	Languages     []types.Language
}

// Stats computes the numbers federatedSearch shares with peers without
// exposing pattern bodies.
func (e *Engine) Stats() (FederatedStats, error) {
	stats, err := e.store.Stats()
	if err != nil {
		return FederatedStats{}, err
	}
	langs := make([]types.Language, 0, len(stats.ByLanguage))
	for lang := range stats.ByLanguage {
		langs = append(langs, lang)
	}
	return FederatedStats{TotalPatterns: stats.Total, AvgCoherency: stats.AvgCoherency, Languages: langs}, nil
}
