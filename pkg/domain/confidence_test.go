package domain

import (
	"testing"
	"time"
)

func gelEvidence(name string, created time.Time) Evidence {
	return Evidence{Name: name, ReviewerType: ReviewerGEL, CreatedAt: created}
}

func TestEvidenceStatusFlaggedAlwaysZero(t *testing.T) {
	entry := EntityRecord{
		Flagged:  true,
		Evidence: []Evidence{gelEvidence(ExpertReviewGreen, time.Now())},
	}
	if got := EvidenceStatus(entry); got != StatusNoList {
		t.Fatalf("expected flagged entry to rate 0, got %d", got)
	}
}

func TestEvidenceStatusLatestExpertReviewWins(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := EntityRecord{
		Evidence: []Evidence{
			gelEvidence(ExpertReviewGreen, base),
			gelEvidence(ExpertReviewRed, base.Add(time.Hour)),
			gelEvidence("UKGTN", base.Add(2*time.Hour)),
			gelEvidence("Emory Genetics Laboratory", base.Add(3*time.Hour)),
		},
	}
	if got := EvidenceStatus(entry); got != StatusRed {
		t.Fatalf("expected most recent expert review to win with 1, got %d", got)
	}
}

func TestEvidenceStatusExpertReviewRemoved(t *testing.T) {
	entry := EntityRecord{
		Evidence: []Evidence{gelEvidence(ExpertReviewRemoved, time.Now())},
	}
	if got := EvidenceStatus(entry); got != StatusNoList {
		t.Fatalf("expected removed review to rate 0, got %d", got)
	}
}

func TestEvidenceStatusCountsDistinctSources(t *testing.T) {
	now := time.Now()
	entry := EntityRecord{
		Evidence: []Evidence{
			gelEvidence("UKGTN", now),
			gelEvidence("UKGTN", now.Add(time.Minute)),
			gelEvidence("Emory Genetics Laboratory", now),
		},
	}
	if got := EvidenceStatus(entry); got != StatusAmber {
		t.Fatalf("expected two distinct sources to rate 2, got %d", got)
	}
	entry.Evidence = append(entry.Evidence,
		gelEvidence("Radboud University Medical Center, Nijmegen", now),
		gelEvidence("Illumina TruGenome Clinical Sequencing Services", now),
		gelEvidence("NHS GMS", now),
	)
	if got := EvidenceStatus(entry); got != StatusGreen {
		t.Fatalf("expected source count to cap at 3, got %d", got)
	}
}

func TestEvidenceStatusNonCuratorEvidenceIgnored(t *testing.T) {
	entry := EntityRecord{
		Evidence: []Evidence{
			{Name: "UKGTN", ReviewerType: ReviewerVerified, CreatedAt: time.Now()},
		},
	}
	if got := EvidenceStatus(entry); got != StatusNoList {
		t.Fatalf("expected external evidence to rate 0, got %d", got)
	}
}

func TestEvidenceStatusAnyCuratorSourceRatesRed(t *testing.T) {
	entry := EntityRecord{
		Evidence: []Evidence{gelEvidence("Research", time.Now())},
	}
	if got := EvidenceStatus(entry); got != StatusRed {
		t.Fatalf("expected non-diagnostic curator source to rate 1, got %d", got)
	}
}

func TestComputeStatsSumsAcrossEntries(t *testing.T) {
	entries := []EntityRecord{
		{Kind: KindGene, SavedGELStatus: 3, Evaluations: []Evaluation{{User: "alice"}, {User: "bob"}}},
		{Kind: KindGene, SavedGELStatus: 3, Evaluations: []Evaluation{{User: "alice"}}},
		{Kind: KindSTR, SavedGELStatus: 2},
		{Kind: KindRegion, SavedGELStatus: 0},
	}
	stats := ComputeStats(entries)
	if stats.NumberOfEntities != 4 || stats.NumberOfGenes != 2 || stats.NumberOfSTRs != 1 || stats.NumberOfRegions != 1 {
		t.Fatalf("unexpected kind counts: %+v", stats)
	}
	if stats.NumberOfGreen != 2 || stats.NumberOfAmber != 1 || stats.NumberOfGray != 1 {
		t.Fatalf("unexpected rating counts: %+v", stats)
	}
	if stats.NumberOfEvaluations != 3 {
		t.Fatalf("expected 3 evaluations, got %d", stats.NumberOfEvaluations)
	}
	if len(stats.Reviewers) != 2 || stats.Reviewers[0] != "alice" || stats.Reviewers[1] != "bob" {
		t.Fatalf("unexpected reviewers: %v", stats.Reviewers)
	}
}
