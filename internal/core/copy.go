package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"panelcore/internal/infra/persistence/memory"
	"panelcore/pkg/domain"
)

// CopyResult reports the per-target outcome of a cross-panel copy.
type CopyResult struct {
	// Copied maps target panel id to entry names copied onto it.
	Copied map[string][]string
	// Skipped maps target panel id to entry names already present there.
	Skipped map[string][]string
}

// CopyToPanels copies entries, with their full review history, from one panel
// onto others. Targets are processed in ascending panel-id order; an entry
// already present on a target is skipped rather than merged. Each target that
// receives at least one entry gets a minor version bump first.
func (s *Service) CopyToPanels(ctx context.Context, sourcePanelID string, kind domain.EntityKind, names []string, targetPanelIDs []string, user User) (result CopyResult, err error) {
	defer func(start time.Time) { s.observe(ctx, "copy_to_panels", start, err) }(time.Now())

	if !user.IsGEL() {
		return CopyResult{}, domain.ErrValidation{Field: "user", Message: "only curators may copy entries across panels"}
	}
	if len(names) == 0 || len(targetPanelIDs) == 0 {
		return CopyResult{}, domain.ErrValidation{Field: "names", Message: "nothing to copy"}
	}
	result = CopyResult{Copied: map[string][]string{}, Skipped: map[string][]string{}}

	targets := append([]string(nil), targetPanelIDs...)
	sort.Strings(targets)

	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		sourcePanel, ok := view.FindPanel(sourcePanelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: sourcePanelID}
		}
		source, ok := view.ActiveSnapshot(sourcePanelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel snapshot", ID: sourcePanel.ActiveSnapshotID}
		}
		entries := make([]EntityRecord, 0, len(names))
		for _, name := range names {
			entry, ok := source.FindEntry(kind, name)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityType(kind), ID: name}
			}
			entries = append(entries, entry)
		}

		for _, targetID := range targets {
			if targetID == sourcePanelID {
				continue
			}
			target, ok := tx.Snapshot().ActiveSnapshot(targetID)
			if !ok {
				return domain.ErrNotFound{Entity: "panel", ID: targetID}
			}
			if target.IsSuperPanel() {
				return domain.ErrValidation{Field: "target", Message: fmt.Sprintf("panel %s is a super-panel and owns no entries", targetID)}
			}
			var pending []EntityRecord
			for _, entry := range entries {
				if _, exists := target.FindEntry(entry.Kind, entry.Name); exists {
					result.Skipped[targetID] = append(result.Skipped[targetID], entry.Name)
					continue
				}
				pending = append(pending, copyEntry(tx, entry, sourcePanel.Name, source.Version))
				result.Copied[targetID] = append(result.Copied[targetID], entry.Name)
			}
			if len(pending) == 0 {
				continue
			}
			comment := fmt.Sprintf("Copied %d entries from %s", len(pending), sourcePanel.Name)
			bumped, err := bumpPanel(tx, targetID, IncrementOptions{Comment: comment}, user, &frozen, map[string]bool{})
			if err != nil {
				return err
			}
			if _, err := tx.UpdatePanelSnapshot(bumped.ID, func(snap *PanelSnapshot) error {
				snap.Entries = append(snap.Entries, pending...)
				snap.Stats = domain.ComputeStats(snap.Entries)
				return nil
			}); err != nil {
				return err
			}
			if err := refreshSuperStats(tx, targetID, map[string]bool{}); err != nil {
				return err
			}
			if err := addActivity(tx, targetID, user, kind, "", comment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CopyResult{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return result, nil
}

// copyEntry deep-copies an entry for a new panel, reassigning identifiers and
// rewriting each evaluation's provenance fields.
func copyEntry(tx Transaction, entry EntityRecord, sourceName string, sourceVersion Version) EntityRecord {
	now := tx.Now()
	cp := memory.CloneEntry(entry)
	cp.Base = domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now}
	for i := range cp.Evidence {
		cp.Evidence[i].ID = tx.NewID()
	}
	for i := range cp.Evaluations {
		ev := &cp.Evaluations[i]
		ev.ID = tx.NewID()
		ev.Version = fmt.Sprintf("Imported from %s panel version %s", sourceName, sourceVersion)
		origin := fmt.Sprintf("%s v%s", sourceName, sourceVersion)
		if ev.OriginalPanel == "" {
			ev.OriginalPanel = origin
		} else {
			ev.OriginalPanel = ev.OriginalPanel + "; " + origin
		}
		for j := range ev.Comments {
			ev.Comments[j].ID = tx.NewID()
		}
	}
	for i := range cp.Comments {
		cp.Comments[i].ID = tx.NewID()
	}
	for i := range cp.Track {
		cp.Track[i].ID = tx.NewID()
	}
	cp.Track = append(cp.Track, domain.TrackRecord{
		ID:          tx.NewID(),
		User:        "",
		Issues:      []string{"copied"},
		Description: fmt.Sprintf("%s was copied from %s version %s", cp.Label(), sourceName, sourceVersion),
		CreatedAt:   now,
	})
	return cp
}
