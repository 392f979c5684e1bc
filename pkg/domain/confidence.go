package domain

import "sort"

// Confidence status values derived from evidence.
const (
	StatusNoList = 0
	StatusRed    = 1
	StatusAmber  = 2
	StatusGreen  = 3
)

// EvidenceStatus derives an entry's confidence rating from its evidence. The
// function is pure: callers cache the result in SavedGELStatus and recompute
// after every evidence mutation.
//
// Flagged entries always rate 0. Otherwise the most recent curator expert
// review wins outright; failing that, the count of distinct diagnostic-grade
// curator sources (capped at green); failing that, any curator source at all
// rates red.
func EvidenceStatus(e EntityRecord) int {
	if e.Flagged {
		return StatusNoList
	}
	var latestReview *Evidence
	sources := map[string]struct{}{}
	hasGEL := false
	for _, ev := range e.Evidence {
		if !ev.IsGEL() {
			continue
		}
		hasGEL = true
		if _, ok := ExpertReviewRating(ev.Name); ok {
			if latestReview == nil || ev.CreatedAt.After(latestReview.CreatedAt) {
				review := ev
				latestReview = &review
			}
			continue
		}
		if IsHighConfidenceSource(ev.Name) {
			sources[ev.Name] = struct{}{}
		}
	}
	if latestReview != nil {
		rating, _ := ExpertReviewRating(latestReview.Name)
		return rating
	}
	if n := len(sources); n > 0 {
		if n > StatusGreen {
			return StatusGreen
		}
		return n
	}
	if hasGEL {
		return StatusRed
	}
	return StatusNoList
}

// GELStatusName renders a confidence status for serialisations and stats.
func GELStatusName(status int) string {
	switch {
	case status >= StatusGreen:
		return "green"
	case status == StatusAmber:
		return "amber"
	case status == StatusRed:
		return "red"
	}
	return "grey"
}

// ComputeStats derives the cached snapshot counters from a set of entries.
// Super-panel callers pass the concatenation of every child's entries, which
// keeps the documented behaviour of summing per-child counts and counting
// shared genes once per child.
func ComputeStats(entries []EntityRecord) SnapshotStats {
	var stats SnapshotStats
	reviewers := map[string]struct{}{}
	for _, e := range entries {
		stats.NumberOfEntities++
		switch e.Kind {
		case KindGene:
			stats.NumberOfGenes++
		case KindSTR:
			stats.NumberOfSTRs++
		case KindRegion:
			stats.NumberOfRegions++
		}
		switch {
		case e.SavedGELStatus >= StatusGreen:
			stats.NumberOfGreen++
		case e.SavedGELStatus == StatusAmber:
			stats.NumberOfAmber++
		case e.SavedGELStatus == StatusRed:
			stats.NumberOfRed++
		default:
			stats.NumberOfGray++
		}
		stats.NumberOfEvaluations += len(e.Evaluations)
		for _, ev := range e.Evaluations {
			reviewers[ev.User] = struct{}{}
		}
	}
	for r := range reviewers {
		stats.Reviewers = append(stats.Reviewers, r)
	}
	sort.Strings(stats.Reviewers)
	return stats
}
