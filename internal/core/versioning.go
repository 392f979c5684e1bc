package core

import (
	"context"
	"fmt"
	"time"

	"panelcore/internal/infra/persistence/memory"
	"panelcore/pkg/domain"
)

// IncrementOptions controls a version bump.
type IncrementOptions struct {
	// Major bumps the major component; minor otherwise.
	Major bool
	// Comment is stored as the new snapshot's version comment.
	Comment string
	// SkipSuperPanels suppresses the cascade into referencing super-panels.
	SkipSuperPanels bool
}

// IncrementVersion freezes the panel's active snapshot into a historical
// record and replaces it with a deep copy carrying the bumped version. Super
// panels referencing the panel receive a minor bump of their own so their
// aggregated view stays current.
func (s *Service) IncrementVersion(ctx context.Context, panelID string, opts IncrementOptions, user User) (snapshot PanelSnapshot, err error) {
	defer func(start time.Time) { s.observe(ctx, "increment_version", start, err) }(time.Now())

	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		visited := map[string]bool{}
		snapshot, err = bumpPanel(tx, panelID, opts, user, &frozen, visited)
		return err
	})
	if err != nil {
		return PanelSnapshot{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return snapshot, nil
}

// bumpPanel performs one version increment inside the transaction, cascading
// minor bumps into super-panels. visited guards against aggregation cycles.
func bumpPanel(tx Transaction, panelID string, opts IncrementOptions, user User, frozen *[]frozenPayload, visited map[string]bool) (PanelSnapshot, error) {
	if visited[panelID] {
		if active, ok := tx.Snapshot().ActiveSnapshot(panelID); ok {
			return active, nil
		}
		return PanelSnapshot{}, domain.ErrNotFound{Entity: "panel", ID: panelID}
	}
	visited[panelID] = true

	view := tx.Snapshot()
	panel, ok := view.FindPanel(panelID)
	if !ok {
		return PanelSnapshot{}, domain.ErrNotFound{Entity: "panel", ID: panelID}
	}
	active, ok := view.ActiveSnapshot(panelID)
	if !ok {
		return PanelSnapshot{}, domain.ErrNotFound{Entity: "panel snapshot", ID: panel.ActiveSnapshotID}
	}

	if err := freezeSnapshot(tx, panel, active, "version increment", nil, user, frozen); err != nil {
		return PanelSnapshot{}, err
	}

	now := tx.Now()
	next := active
	next.Base = domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now}
	if opts.Major {
		next.Version = active.Version.IncrementMajor()
	} else {
		next.Version = active.Version.IncrementMinor()
	}
	next.VersionComment = opts.Comment
	next.ChildPanels = append([]string(nil), active.ChildPanels...)
	next.OldPanels = append([]string(nil), active.OldPanels...)
	next.Entries = make([]domain.EntityRecord, 0, len(active.Entries))
	for _, entry := range active.Entries {
		cp := memory.CloneEntry(entry)
		cp.ID = tx.NewID()
		next.Entries = append(next.Entries, cp)
	}
	if next.IsSuperPanel() {
		next.Stats = sumChildStats(tx.Snapshot(), next.ChildPanels)
	} else {
		next.Stats = domain.ComputeStats(next.Entries)
	}

	next, err := tx.CreatePanelSnapshot(next)
	if err != nil {
		return PanelSnapshot{}, err
	}
	if _, err := tx.UpdatePanel(panelID, func(p *Panel) error {
		p.ActiveSnapshotID = next.ID
		return nil
	}); err != nil {
		return PanelSnapshot{}, err
	}

	if !opts.SkipSuperPanels {
		for _, superID := range view.SuperPanelsReferencing(panelID) {
			cascade := IncrementOptions{
				Comment: fmt.Sprintf("Child panel %s updated to version %s", panel.Name, next.Version),
			}
			if _, err := bumpPanel(tx, superID, cascade, user, frozen, visited); err != nil {
				return PanelSnapshot{}, err
			}
		}
	}
	return next, nil
}

// freezeSnapshot renders the snapshot into a historical record unless the
// version is already frozen, and queues the payload for archival.
func freezeSnapshot(tx Transaction, panel Panel, snapshot PanelSnapshot, reason string, signedOff *time.Time, user User, frozen *[]frozenPayload) error {
	if _, exists := tx.Snapshot().FindHistoricalSnapshot(panel.ID, snapshot.Version); exists {
		return nil
	}
	hist, err := renderHistorical(tx, panel, snapshot, reason, signedOff)
	if err != nil {
		return err
	}
	if _, err := tx.CreateHistoricalSnapshot(hist); err != nil {
		return err
	}
	*frozen = append(*frozen, frozenPayload{
		PanelID: panel.ID,
		Version: snapshot.Version,
		Payload: hist.Data,
		User:    user.Name,
		Reason:  reason,
	})
	return nil
}

// SignOffPanel freezes the panel's current active version with a sign-off
// date and points the panel's signed-off marker at it.
func (s *Service) SignOffPanel(ctx context.Context, panelID string, date time.Time, user User) (hist HistoricalSnapshot, err error) {
	defer func(start time.Time) { s.observe(ctx, "sign_off_panel", start, err) }(time.Now())

	if !user.IsGEL() {
		return HistoricalSnapshot{}, domain.ErrValidation{Field: "user", Message: "only curators may sign off panels"}
	}
	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		hist, err = signOffActive(tx, panelID, date, user, &frozen)
		return err
	})
	if err != nil {
		return HistoricalSnapshot{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return hist, nil
}

// signOffActive renders the active snapshot into a signed-off historical
// record inside the transaction.
func signOffActive(tx Transaction, panelID string, date time.Time, user User, frozen *[]frozenPayload) (HistoricalSnapshot, error) {
	view := tx.Snapshot()
	panel, ok := view.FindPanel(panelID)
	if !ok {
		return HistoricalSnapshot{}, domain.ErrNotFound{Entity: "panel", ID: panelID}
	}
	active, ok := view.ActiveSnapshot(panelID)
	if !ok {
		return HistoricalSnapshot{}, domain.ErrNotFound{Entity: "panel snapshot", ID: panel.ActiveSnapshotID}
	}
	if _, exists := view.FindHistoricalSnapshot(panelID, active.Version); exists {
		return HistoricalSnapshot{}, domain.ErrConflict{Entity: "historical snapshot", ID: panelID, Reason: fmt.Sprintf("version %s already frozen", active.Version)}
	}
	hist, err := renderHistorical(tx, panel, active, "sign-off", &date)
	if err != nil {
		return HistoricalSnapshot{}, err
	}
	hist, err = tx.CreateHistoricalSnapshot(hist)
	if err != nil {
		return HistoricalSnapshot{}, err
	}
	if _, err := tx.UpdatePanel(panelID, func(p *Panel) error {
		p.SignedOffID = &hist.ID
		return nil
	}); err != nil {
		return HistoricalSnapshot{}, err
	}
	if err := addActivity(tx, panelID, user, "", "", fmt.Sprintf("Panel version %s signed off", active.Version)); err != nil {
		return HistoricalSnapshot{}, err
	}
	*frozen = append(*frozen, frozenPayload{
		PanelID: panelID,
		Version: active.Version,
		Payload: hist.Data,
		User:    user.Name,
		Reason:  "sign-off",
	})
	return hist, nil
}

// PanelVersion returns the frozen record for one historical version.
func (s *Service) PanelVersion(ctx context.Context, panelID string, version Version) (HistoricalSnapshot, error) {
	var hist HistoricalSnapshot
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindHistoricalSnapshot(panelID, version)
		if !ok {
			return domain.ErrNotFound{Entity: "historical snapshot", ID: fmt.Sprintf("%s@%s", panelID, version)}
		}
		hist = found
		return nil
	})
	if err != nil {
		return HistoricalSnapshot{}, err
	}
	return hist, nil
}

// PanelVersions lists a panel's frozen versions in ascending order.
func (s *Service) PanelVersions(ctx context.Context, panelID string) []HistoricalSnapshot {
	return s.store.ListHistoricalSnapshots(panelID)
}
