package domain

import (
	"testing"
	"time"
)

func TestVersionOrderingAndIncrement(t *testing.T) {
	v := Version{Major: 1, Minor: 42}
	if next := v.IncrementMinor(); next != (Version{Major: 1, Minor: 43}) {
		t.Fatalf("unexpected minor increment: %v", next)
	}
	if next := v.IncrementMajor(); next != (Version{Major: 2, Minor: 0}) {
		t.Fatalf("expected major increment to reset minor, got %v", next)
	}
	if !(Version{Major: 1, Minor: 99}).Less(Version{Major: 2, Minor: 0}) {
		t.Fatalf("expected 1.99 < 2.0")
	}
	if (Version{Major: 2, Minor: 0}).Less(Version{Major: 2, Minor: 0}) {
		t.Fatalf("expected ordering to be strict")
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("3.14")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != (Version{Major: 3, Minor: 14}) {
		t.Fatalf("unexpected version: %v", v)
	}
	for _, bad := range []string{"3", "a.b", "1.-2", ""} {
		if _, err := ParseVersion(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseRatingAcceptsBothForms(t *testing.T) {
	for input, want := range map[string]Rating{
		"GREEN":                      RatingGreen,
		"Green List (high evidence)": RatingGreen,
		"I don't know":               RatingAmber,
		"Red List (low evidence)":    RatingRed,
		"":                           "",
	} {
		got, ok := ParseRating(input)
		if !ok || got != want {
			t.Fatalf("ParseRating(%q) = %q, %v", input, got, ok)
		}
	}
	if _, ok := ParseRating("BLUE"); ok {
		t.Fatalf("expected unknown rating to be rejected")
	}
}

func TestEntityNameFormat(t *testing.T) {
	for _, name := range []string{"BRCA1", "AR_CAG", "HTT-repeat", "chr16p13.11", "GENE~1", "A$B@C"} {
		if !IsValidEntityName(name) {
			t.Fatalf("expected %q to be valid", name)
		}
	}
	for _, name := range []string{"", "gene name", "gene/alt", "gene,alt"} {
		if IsValidEntityName(name) {
			t.Fatalf("expected %q to be invalid", name)
		}
	}
}

func TestRepeatedSequenceAlphabet(t *testing.T) {
	if !IsValidRepeatedSequence("CAGN") {
		t.Fatalf("expected CAGN to be valid")
	}
	for _, seq := range []string{"", "CAGU", "cag"} {
		if IsValidRepeatedSequence(seq) {
			t.Fatalf("expected %q to be invalid", seq)
		}
	}
}

func TestDeploymentTimeout(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	start := now.Add(-45 * time.Minute)
	open := ReleaseDeployment{Start: &start}
	if !open.TimedOut(now) {
		t.Fatalf("expected 45-minute-old open deployment to time out")
	}
	recent := now.Add(-10 * time.Minute)
	if (ReleaseDeployment{Start: &recent}).TimedOut(now) {
		t.Fatalf("expected 10-minute-old deployment to stay in flight")
	}
	end := now
	closed := ReleaseDeployment{Start: &start, End: &end}
	if closed.TimedOut(now.Add(time.Hour)) {
		t.Fatalf("expected finished deployment to never time out")
	}
	if elapsed := closed.Elapsed(now); elapsed == nil || *elapsed != 45*time.Minute {
		t.Fatalf("unexpected elapsed: %v", elapsed)
	}
}

func TestEvaluationIsCommentWithoutReview(t *testing.T) {
	ev := Evaluation{Comments: []Comment{{Text: "looks fine"}}}
	if !ev.IsCommentWithoutReview() {
		t.Fatalf("expected comment-only evaluation")
	}
	ev.Rating = RatingGreen
	if ev.IsCommentWithoutReview() {
		t.Fatalf("expected rated evaluation to count as a review")
	}
}
