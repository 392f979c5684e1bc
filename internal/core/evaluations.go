package core

import (
	"context"
	"fmt"
	"time"

	"panelcore/pkg/domain"
)

// ReviewInput carries one reviewer's submission against an entry. Empty
// fields leave the existing evaluation untouched; list fields are merged.
type ReviewInput struct {
	Rating              domain.Rating
	ModeOfInheritance   string
	ModeOfPathogenicity string
	Publications        []string
	Phenotypes          []string
	CurrentDiagnostic   bool
	ClinicallyRelevant  bool
	Comment             string
}

func (in ReviewInput) validate() error {
	if _, ok := domain.ParseRating(string(in.Rating)); !ok {
		return domain.ErrValidation{Field: "rating", Message: fmt.Sprintf("unknown rating %q", in.Rating)}
	}
	if in.ModeOfInheritance != "" && !domain.IsValidMOI(in.ModeOfInheritance) {
		return domain.ErrValidation{Field: "mode_of_inheritance", Message: fmt.Sprintf("unrecognised mode of inheritance %q", in.ModeOfInheritance)}
	}
	return nil
}

// UpdateEvaluation upserts the calling user's evaluation on an entry. A user
// holds at most one evaluation per entry; repeat submissions merge into it.
// Reviews never bump the panel version.
func (s *Service) UpdateEvaluation(ctx context.Context, panelID string, kind domain.EntityKind, name string, input ReviewInput, user User) (evaluation domain.Evaluation, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_evaluation", start, err) }(time.Now())

	if err = input.validate(); err != nil {
		return domain.Evaluation{}, err
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		active, ok := tx.Snapshot().ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		if _, err := tx.UpdatePanelSnapshot(active.ID, func(snap *PanelSnapshot) error {
			for i := range snap.Entries {
				if snap.Entries[i].Kind != kind || snap.Entries[i].Name != name {
					continue
				}
				evaluation = mergeEvaluation(tx, &snap.Entries[i], input, user)
				snap.Stats = domain.ComputeStats(snap.Entries)
				return nil
			}
			return domain.ErrNotFound{Entity: domain.EntityType(kind), ID: name}
		}); err != nil {
			return err
		}
		if err := refreshSuperStats(tx, panelID, map[string]bool{}); err != nil {
			return err
		}
		return addActivity(tx, panelID, user, kind, name, fmt.Sprintf("%s reviewed %s", user.Name, name))
	})
	if err != nil {
		return domain.Evaluation{}, err
	}
	return evaluation, nil
}

// mergeEvaluation folds the input into the user's existing evaluation, or
// appends a new one. List fields grow by union; scalar fields overwrite when
// set.
func mergeEvaluation(tx Transaction, entry *EntityRecord, input ReviewInput, user User) domain.Evaluation {
	now := tx.Now()
	idx := -1
	for i := range entry.Evaluations {
		if entry.Evaluations[i].User == user.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		entry.Evaluations = append(entry.Evaluations, domain.Evaluation{
			ID:        tx.NewID(),
			User:      user.Name,
			UserType:  user.Type,
			CreatedAt: now,
		})
		idx = len(entry.Evaluations) - 1
	}
	ev := &entry.Evaluations[idx]
	if input.Rating != "" {
		rating, _ := domain.ParseRating(string(input.Rating))
		ev.Rating = rating
	}
	if input.ModeOfInheritance != "" {
		ev.ModeOfInheritance = input.ModeOfInheritance
	}
	if input.ModeOfPathogenicity != "" {
		ev.ModeOfPathogenicity = input.ModeOfPathogenicity
	}
	ev.Publications = mergeUnique(ev.Publications, input.Publications)
	ev.Phenotypes = mergeUnique(ev.Phenotypes, input.Phenotypes)
	if input.CurrentDiagnostic {
		ev.CurrentDiagnostic = true
	}
	if input.ClinicallyRelevant {
		ev.ClinicallyRelevant = true
	}
	if input.Comment != "" {
		ev.Comments = append(ev.Comments, domain.Comment{
			ID:        tx.NewID(),
			User:      user.Name,
			Text:      input.Comment,
			CreatedAt: now,
		})
	}
	ev.LastUpdated = &now
	entry.UpdatedAt = now
	return *ev
}

// mergeUnique appends the additions that are not already present, keeping
// first-seen order.
func mergeUnique(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range additions {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		existing = append(existing, v)
	}
	return existing
}

// ApplyExpertReview records a curator's verdict on an entry by replacing its
// Expert Review evidence and recomputing the derived rating. The panel
// version does not change.
func (s *Service) ApplyExpertReview(ctx context.Context, panelID string, kind domain.EntityKind, name string, rating domain.Rating, removed bool, user User) (entry EntityRecord, err error) {
	defer func(start time.Time) { s.observe(ctx, "apply_expert_review", start, err) }(time.Now())

	if !user.IsGEL() {
		return EntityRecord{}, domain.ErrValidation{Field: "user", Message: "only curators may apply expert reviews"}
	}
	evidenceName := domain.ExpertReviewRemoved
	if !removed {
		var ok bool
		evidenceName, ok = domain.ExpertReviewForRating(rating)
		if !ok {
			return EntityRecord{}, domain.ErrValidation{Field: "rating", Message: fmt.Sprintf("unknown rating %q", rating)}
		}
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		active, ok := tx.Snapshot().ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		if _, err := tx.UpdatePanelSnapshot(active.ID, func(snap *PanelSnapshot) error {
			for i := range snap.Entries {
				if snap.Entries[i].Kind != kind || snap.Entries[i].Name != name {
					continue
				}
				e := &snap.Entries[i]
				now := tx.Now()
				// A later Expert Review supersedes earlier ones; keep the
				// trail and let recency decide.
				e.Evidence = append(e.Evidence, domain.Evidence{
					ID:           tx.NewID(),
					Name:         evidenceName,
					Rating:       5,
					Reviewer:     user.Name,
					ReviewerType: user.Type,
					CreatedAt:    now,
				})
				e.SavedGELStatus = domain.EvidenceStatus(*e)
				e.UpdatedAt = now
				e.Track = append(e.Track, domain.TrackRecord{
					ID:          tx.NewID(),
					User:        user.Name,
					Issues:      []string{"expert_review"},
					Description: fmt.Sprintf("Expert review set to %s", evidenceName),
					CreatedAt:   now,
				})
				entry = *e
				snap.Stats = domain.ComputeStats(snap.Entries)
				return nil
			}
			return domain.ErrNotFound{Entity: domain.EntityType(kind), ID: name}
		}); err != nil {
			return err
		}
		if err := refreshSuperStats(tx, panelID, map[string]bool{}); err != nil {
			return err
		}
		return addActivity(tx, panelID, user, kind, name, fmt.Sprintf("Expert review for %s set to %s", name, evidenceName))
	})
	if err != nil {
		return EntityRecord{}, err
	}
	return entry, nil
}
