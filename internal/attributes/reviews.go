package attributes

import "sort"

// SourcePriority orders review sources for selection and badge display.
type SourcePriority struct {
	Source   string
	Priority int
}

// AggregateReviews orders reviews by configured priority (highest first)
// and truncates to maxBadges, per §4.4 "Reviews".
func AggregateReviews(reviews []Review, priorities []SourcePriority, maxBadges int) []Review {
	rank := make(map[string]int, len(priorities))
	for _, p := range priorities {
		rank[p.Source] = p.Priority
	}

	ordered := make([]Review, len(reviews))
	copy(ordered, reviews)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank[ordered[i].Source] > rank[ordered[j].Source]
	})

	if maxBadges > 0 && len(ordered) > maxBadges {
		ordered = ordered[:maxBadges]
	}
	return ordered
}

// AwardHit is one source's award symbols, already ordered by the caller's
// source priority.
type AwardHit struct {
	Source string
	Awards []string
}

// SelectAwards implements §4.4 "Awards": the first non-empty hit wins
// unless allowMultiple is set, in which case the highest-priority hit plus
// any additional hits of equal tier (same priority value) are kept.
func SelectAwards(hits []AwardHit, priorities []SourcePriority, allowMultiple bool) []string {
	rank := make(map[string]int, len(priorities))
	for _, p := range priorities {
		rank[p.Source] = p.Priority
	}

	ordered := make([]AwardHit, 0, len(hits))
	for _, h := range hits {
		if len(h.Awards) > 0 {
			ordered = append(ordered, h)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank[ordered[i].Source] > rank[ordered[j].Source]
	})

	if !allowMultiple {
		return ordered[0].Awards
	}

	topRank := rank[ordered[0].Source]
	var out []string
	for _, h := range ordered {
		if rank[h.Source] == topRank {
			out = append(out, h.Awards...)
		}
	}
	return out
}
