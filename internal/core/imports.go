package core

import (
	"context"
	"fmt"
	"time"

	"panelcore/pkg/domain"
)

// EntityBatch is one panel's slice of an entity upload.
type EntityBatch struct {
	PanelID  string
	Entities []EntityInput
}

// ReviewBatch is one panel's slice of a review upload.
type ReviewBatch struct {
	PanelID string
	Reviews []ReviewImport
}

// ReviewImport is one parsed review row: an evaluation submitted on behalf of
// the named reviewer.
type ReviewImport struct {
	Kind     domain.EntityKind
	Name     string
	Reviewer User
	Review   ReviewInput
}

// ImportEntities upserts a parsed entity batch onto one panel. See
// ImportEntityBatches for the semantics.
func (s *Service) ImportEntities(ctx context.Context, panelID string, inputs []EntityInput, user User) (snapshot PanelSnapshot, err error) {
	batches, err := s.ImportEntityBatches(ctx, []EntityBatch{{PanelID: panelID, Entities: inputs}}, user)
	if err != nil {
		return PanelSnapshot{}, err
	}
	return batches[panelID], nil
}

// ImportEntityBatches upserts parsed entity rows across panels in one
// transaction. Each affected panel gets a single minor version bump; existing
// entries are overwritten field by field while keeping their review history.
// The whole upload either lands completely or not at all.
func (s *Service) ImportEntityBatches(ctx context.Context, batches []EntityBatch, user User) (snapshots map[string]PanelSnapshot, err error) {
	defer func(start time.Time) { s.observe(ctx, "import_entities", start, err) }(time.Now())

	if !user.IsGEL() {
		return nil, domain.ErrValidation{Field: "user", Message: "only curators may import entities"}
	}
	total := 0
	for _, batch := range batches {
		total += len(batch.Entities)
		for _, input := range batch.Entities {
			if err = input.validate(); err != nil {
				return nil, err
			}
		}
	}
	if total == 0 {
		return nil, domain.ErrValidation{Field: "entities", Message: "nothing to import"}
	}

	snapshots = make(map[string]PanelSnapshot, len(batches))
	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, batch := range batches {
			snapshot, err := importEntitiesTx(tx, batch.PanelID, batch.Entities, user, &frozen)
			if err != nil {
				return err
			}
			snapshots[batch.PanelID] = snapshot
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.archiveFrozen(ctx, frozen)
	return snapshots, nil
}

func importEntitiesTx(tx Transaction, panelID string, inputs []EntityInput, user User, frozen *[]frozenPayload) (PanelSnapshot, error) {
	view := tx.Snapshot()
	active, ok := view.ActiveSnapshot(panelID)
	if !ok {
		return PanelSnapshot{}, domain.ErrNotFound{Entity: "panel", ID: panelID}
	}
	if active.IsSuperPanel() {
		return PanelSnapshot{}, domain.ErrValidation{Field: "panel", Message: "super-panels own no entries of their own"}
	}
	genes := make([]*domain.GeneData, len(inputs))
	for i, input := range inputs {
		gene, err := resolveGene(view, input)
		if err != nil {
			return PanelSnapshot{}, err
		}
		genes[i] = gene
	}

	bumped, err := bumpPanel(tx, panelID, IncrementOptions{Comment: fmt.Sprintf("Imported %d entities", len(inputs))}, user, frozen, map[string]bool{})
	if err != nil {
		return PanelSnapshot{}, err
	}
	snapshot, err := tx.UpdatePanelSnapshot(bumped.ID, func(snap *PanelSnapshot) error {
		for i, input := range inputs {
			incoming := buildEntry(tx, input, genes[i], user)
			replaced := false
			for j := range snap.Entries {
				if snap.Entries[j].Kind == input.Kind && snap.Entries[j].Name == input.Name {
					// Keep the review history; replace the curated fields.
					incoming.Base = snap.Entries[j].Base
					incoming.Evaluations = snap.Entries[j].Evaluations
					incoming.Comments = snap.Entries[j].Comments
					incoming.Track = append(snap.Entries[j].Track, incoming.Track...)
					incoming.Evidence = mergeEvidence(snap.Entries[j].Evidence, incoming.Evidence)
					incoming.UpdatedAt = tx.Now()
					incoming.SavedGELStatus = domain.EvidenceStatus(incoming)
					snap.Entries[j] = incoming
					replaced = true
					break
				}
			}
			if !replaced {
				snap.Entries = append(snap.Entries, incoming)
			}
		}
		snap.Stats = domain.ComputeStats(snap.Entries)
		return nil
	})
	if err != nil {
		return PanelSnapshot{}, err
	}
	for _, input := range inputs {
		for _, tag := range input.Tags {
			if _, err := tx.EnsureTag(tag); err != nil {
				return PanelSnapshot{}, err
			}
		}
	}
	if err := refreshSuperStats(tx, panelID, map[string]bool{}); err != nil {
		return PanelSnapshot{}, err
	}
	if err := addActivity(tx, panelID, user, "", "", fmt.Sprintf("Imported %d entities", len(inputs))); err != nil {
		return PanelSnapshot{}, err
	}
	return snapshot, nil
}

// mergeEvidence keeps existing evidence and appends incoming sources not
// already present by name.
func mergeEvidence(existing, incoming []domain.Evidence) []domain.Evidence {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.Name] = true
	}
	for _, e := range incoming {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		existing = append(existing, e)
	}
	return existing
}

// ImportReviews applies a parsed review batch to one panel. See
// ImportReviewBatches for the semantics.
func (s *Service) ImportReviews(ctx context.Context, panelID string, reviews []ReviewImport, user User) (snapshot PanelSnapshot, err error) {
	batches, err := s.ImportReviewBatches(ctx, []ReviewBatch{{PanelID: panelID, Reviews: reviews}}, user)
	if err != nil {
		return PanelSnapshot{}, err
	}
	return batches[panelID], nil
}

// ImportReviewBatches applies parsed review rows across panels in one
// transaction. Reviews merge into each reviewer's existing evaluation and
// never bump panel versions.
func (s *Service) ImportReviewBatches(ctx context.Context, batches []ReviewBatch, user User) (snapshots map[string]PanelSnapshot, err error) {
	defer func(start time.Time) { s.observe(ctx, "import_reviews", start, err) }(time.Now())

	if !user.IsGEL() {
		return nil, domain.ErrValidation{Field: "user", Message: "only curators may import reviews"}
	}
	total := 0
	for _, batch := range batches {
		total += len(batch.Reviews)
		for _, review := range batch.Reviews {
			if err = review.Review.validate(); err != nil {
				return nil, err
			}
		}
	}
	if total == 0 {
		return nil, domain.ErrValidation{Field: "reviews", Message: "nothing to import"}
	}

	snapshots = make(map[string]PanelSnapshot, len(batches))
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, batch := range batches {
			active, ok := tx.Snapshot().ActiveSnapshot(batch.PanelID)
			if !ok {
				return domain.ErrNotFound{Entity: "panel", ID: batch.PanelID}
			}
			snapshot, err := tx.UpdatePanelSnapshot(active.ID, func(snap *PanelSnapshot) error {
				for _, review := range batch.Reviews {
					found := false
					for i := range snap.Entries {
						if snap.Entries[i].Kind == review.Kind && snap.Entries[i].Name == review.Name {
							mergeEvaluation(tx, &snap.Entries[i], review.Review, review.Reviewer)
							found = true
							break
						}
					}
					if !found {
						return domain.ErrNotFound{Entity: domain.EntityType(review.Kind), ID: review.Name}
					}
				}
				snap.Stats = domain.ComputeStats(snap.Entries)
				return nil
			})
			if err != nil {
				return err
			}
			if err := refreshSuperStats(tx, batch.PanelID, map[string]bool{}); err != nil {
				return err
			}
			if err := addActivity(tx, batch.PanelID, user, "", "", fmt.Sprintf("Imported %d reviews", len(batch.Reviews))); err != nil {
				return err
			}
			snapshots[batch.PanelID] = snapshot
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
