package store

import (
	"sort"

	"github.com/remembrance-oracle/oracle-core/internal/logging"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// DedupGroup is one cluster of near-duplicate patterns found by
// Deduplicate: survivor is kept, absorbed are merged into it and removed.
type DedupGroup struct {
	Survivor types.Pattern
	Absorbed []types.Pattern
}

// LinkGroup is one cross-language near-duplicate pairing found by
// Deduplicate. Unlike DedupGroup, neither side is deleted: Canonical is
// left untouched and Variant is rewritten to reference it instead of
// being folded away, since a translation into another language is not
// the same artifact as a same-language near-copy (spec.md §4.2).
type LinkGroup struct {
	Canonical types.Pattern
	Variant   types.Pattern
}

// minHashJaccard estimates Jaccard similarity from two MinHash signatures
// of equal length: the fraction of bands where the two signatures agree.
func minHashJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

// nearDuplicateThreshold is the estimated-Jaccard cutoff above which two
// patterns are folded together (same language) or linked as variants
// (cross-language) by Deduplicate. spec.md §4.2 states the criterion as
// "token-Jaccard >= 0.9 or MinHash banded match"; banded MinHash
// agreement is itself an estimator of token-Jaccard, so this constant
// targets that same 0.9 figure rather than a looser proxy.
const nearDuplicateThreshold = 0.9

// outranks reports whether a should be preferred over b as the survivor
// of a same-language merge or the canonical side of a cross-language
// link: higher coherency wins, ties broken by earlier creation.
func outranks(a, b types.Pattern) bool {
	if a.CoherencyScore.Total != b.CoherencyScore.Total {
		return a.CoherencyScore.Total > b.CoherencyScore.Total
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Deduplicate groups near-duplicate Patterns. Same-language clusters
// (MinHash Jaccard >= nearDuplicateThreshold) are merged down to a
// single survivor, chosen by highest coherency then earliest createdAt.
// Cross-language clusters that clear the same bar are linked rather than
// merged: the lower-ranked pattern keeps its own code and test proof but
// is marked as a variant of the canonical one (spec.md §4.2 "cross-
// language near-duplicates are linked... rather than merged"). It
// returns both sets of groups for the caller (typically the Lifecycle
// Engine's "optimize" phase) to report.
func (s *Store) Deduplicate() ([]DedupGroup, []LinkGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(patternSelect)
	if err != nil {
		return nil, nil, err
	}
	var all []types.Pattern
	for rows.Next() {
		p, err := scanPatternRows(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		all = append(all, p)
	}
	rows.Close()

	byLanguage := map[types.Language][]types.Pattern{}
	for _, p := range all {
		byLanguage[p.Language] = append(byLanguage[p.Language], p)
	}

	var groups []DedupGroup
	for _, bucket := range byLanguage {
		assigned := make([]bool, len(bucket))
		for i := range bucket {
			if assigned[i] || len(bucket[i].MinHashSignature) == 0 {
				continue
			}
			group := []types.Pattern{bucket[i]}
			assigned[i] = true
			for j := i + 1; j < len(bucket); j++ {
				if assigned[j] {
					continue
				}
				if minHashJaccard(bucket[i].MinHashSignature, bucket[j].MinHashSignature) >= nearDuplicateThreshold {
					group = append(group, bucket[j])
					assigned[j] = true
				}
			}
			if len(group) > 1 {
				groups = append(groups, buildDedupGroup(group))
			}
		}
	}

	absorbedIDs := make(map[string]bool)
	survivorUpdates := make(map[string]types.Pattern, len(groups))
	for i := range groups {
		g := &groups[i]
		merged := g.Survivor
		for _, absorbed := range g.Absorbed {
			merged = mergePatterns(merged, absorbed)
			absorbedIDs[absorbed.ID] = true
			if _, err := s.db.Exec(`DELETE FROM patterns WHERE id = ?`, absorbed.ID); err != nil {
				return nil, nil, err
			}
		}
		if err := s.writePatternLocked(merged); err != nil {
			return nil, nil, err
		}
		g.Survivor = merged
		survivorUpdates[merged.ID] = merged
		logging.Get(logging.CategoryStore).Info("deduplicated %d patterns into survivor %s", len(g.Absorbed)+1, merged.ID)
	}

	// Cross-language pass runs over what's left after same-language
	// merging, so a pattern already absorbed above is never also
	// considered for a cross-language link.
	remaining := make([]types.Pattern, 0, len(all)-len(absorbedIDs))
	for _, p := range all {
		if absorbedIDs[p.ID] {
			continue
		}
		if updated, ok := survivorUpdates[p.ID]; ok {
			p = updated
		}
		remaining = append(remaining, p)
	}

	var links []LinkGroup
	linked := make(map[string]bool)
	for i := range remaining {
		if linked[remaining[i].ID] || len(remaining[i].MinHashSignature) == 0 {
			continue
		}
		if remaining[i].GenerationMethod == types.GenerationVariant {
			continue
		}
		for j := i + 1; j < len(remaining); j++ {
			if linked[remaining[j].ID] || len(remaining[j].MinHashSignature) == 0 {
				continue
			}
			if remaining[i].Language == remaining[j].Language {
				continue
			}
			if remaining[j].GenerationMethod == types.GenerationVariant {
				continue
			}
			if minHashJaccard(remaining[i].MinHashSignature, remaining[j].MinHashSignature) < nearDuplicateThreshold {
				continue
			}

			canonical, variant := remaining[i], remaining[j]
			if outranks(variant, canonical) {
				canonical, variant = variant, canonical
			}
			variant.ParentPattern = canonical.ID
			variant.GenerationMethod = types.GenerationVariant
			if variant.Extensions == nil {
				variant.Extensions = map[string]string{}
			}
			variant.Extensions["variantOfLanguage"] = string(canonical.Language)
			if err := s.writePatternLocked(variant); err != nil {
				return nil, nil, err
			}

			linked[remaining[i].ID] = true
			linked[remaining[j].ID] = true
			links = append(links, LinkGroup{Canonical: canonical, Variant: variant})
			logging.Get(logging.CategoryStore).Info("linked cross-language variant %s (%s) to canonical %s (%s)",
				variant.ID, variant.Language, canonical.ID, canonical.Language)
			break
		}
	}

	return groups, links, nil
}

func buildDedupGroup(group []types.Pattern) DedupGroup {
	sort.Slice(group, func(i, j int) bool { return outranks(group[i], group[j]) })
	return DedupGroup{Survivor: group[0], Absorbed: group[1:]}
}

// autoDeduplicateOnStartup runs Deduplicate once when the Store opens,
// folding together any near-duplicates left over from an interrupted
// prior run (e.g. a crash between a federation pull and its dedup pass).
// Failures are logged rather than fatal: startup should still succeed
// against a store with no MinHash signatures yet populated.
func (s *Store) autoDeduplicateOnStartup() error {
	_, _, err := s.Deduplicate()
	return err
}
