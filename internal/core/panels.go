package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"panelcore/pkg/domain"
)

// CreatePanelInput describes a new panel. ChildPanels turns the panel into a
// super-panel aggregating the named panels.
type CreatePanelInput struct {
	Name        string
	Title       string
	SubTitle    string
	Description string
	Types       []string
	OldPK       string
	ChildPanels []string
}

// CreatePanel creates a panel with an internal 0.0 working snapshot.
func (s *Service) CreatePanel(ctx context.Context, input CreatePanelInput, user User) (panel Panel, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_panel", start, err) }(time.Now())

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Panel{}, domain.ErrValidation{Field: "name", Message: "panel name required"}
	}
	title := input.Title
	if title == "" {
		title = name
	}

	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		for _, child := range input.ChildPanels {
			if _, ok := view.FindPanel(child); !ok {
				return domain.ErrNotFound{Entity: "panel", ID: child}
			}
		}
		now := tx.Now()
		created, err := tx.CreatePanel(Panel{
			Base:   domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now},
			OldPK:  input.OldPK,
			Name:   name,
			Status: domain.StatusInternal,
			Types:  append([]string(nil), input.Types...),
		})
		if err != nil {
			return err
		}
		snapshot := PanelSnapshot{
			Base:        domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now},
			PanelID:     created.ID,
			Version:     Version{},
			Title:       title,
			SubTitle:    input.SubTitle,
			Description: input.Description,
			ChildPanels: append([]string(nil), input.ChildPanels...),
		}
		if snapshot.IsSuperPanel() {
			snapshot.Stats = sumChildStats(tx.Snapshot(), snapshot.ChildPanels)
		}
		snapshot, err = tx.CreatePanelSnapshot(snapshot)
		if err != nil {
			return err
		}
		panel, err = tx.UpdatePanel(created.ID, func(p *Panel) error {
			p.ActiveSnapshotID = snapshot.ID
			return nil
		})
		if err != nil {
			return err
		}
		return addActivity(tx, created.ID, user, "", "", fmt.Sprintf("Panel %s created", name))
	})
	if err != nil {
		return Panel{}, err
	}
	return panel, nil
}

// UpdatePanelStatus moves the panel through its lifecycle. Retirement and
// deletion are status transitions; snapshots stay addressable.
func (s *Service) UpdatePanelStatus(ctx context.Context, panelID string, status domain.PanelStatus, user User) (panel Panel, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_panel_status", start, err) }(time.Now())

	switch status {
	case domain.StatusInternal, domain.StatusPublic, domain.StatusPromoted, domain.StatusRetired, domain.StatusDeleted:
	default:
		return Panel{}, domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if !user.IsGEL() {
		return Panel{}, domain.ErrValidation{Field: "user", Message: "only curators may change panel status"}
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		panel, err = tx.UpdatePanel(panelID, func(p *Panel) error {
			p.Status = status
			return nil
		})
		if err != nil {
			return err
		}
		return addActivity(tx, panelID, user, "", "", fmt.Sprintf("Panel status set to %s", status))
	})
	if err != nil {
		return Panel{}, err
	}
	return panel, nil
}

// UpdatePanelInfo edits the active snapshot's descriptive fields in place
// without a version bump.
func (s *Service) UpdatePanelInfo(ctx context.Context, panelID string, mutate func(*PanelSnapshot) error, user User) (snapshot PanelSnapshot, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_panel_info", start, err) }(time.Now())

	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		active, ok := tx.Snapshot().ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		snapshot, err = tx.UpdatePanelSnapshot(active.ID, mutate)
		return err
	})
	if err != nil {
		return PanelSnapshot{}, err
	}
	return snapshot, nil
}

// GetPanel returns the panel identity by id.
func (s *Service) GetPanel(ctx context.Context, panelID string) (Panel, error) {
	panel, ok := s.store.GetPanel(panelID)
	if !ok {
		return Panel{}, domain.ErrNotFound{Entity: "panel", ID: panelID}
	}
	return panel, nil
}

// ListPanels lists panels, excluding deleted ones unless includeDeleted.
func (s *Service) ListPanels(ctx context.Context, includeDeleted bool) []Panel {
	var out []Panel
	for _, p := range s.store.ListPanels() {
		if !includeDeleted && p.Status == domain.StatusDeleted {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ActiveSnapshot resolves the working snapshot of a panel.
func (s *Service) ActiveSnapshot(ctx context.Context, panelID string) (PanelSnapshot, error) {
	var snapshot PanelSnapshot
	err := s.store.View(ctx, func(view TransactionView) error {
		active, ok := view.ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		snapshot = active
		return nil
	})
	if err != nil {
		return PanelSnapshot{}, err
	}
	return snapshot, nil
}

// Activities returns the panel's audit stream, newest last.
func (s *Service) Activities(ctx context.Context, panelID string) ([]Activity, error) {
	var out []Activity
	err := s.store.View(ctx, func(view TransactionView) error {
		out = view.ListActivities(panelID)
		return nil
	})
	return out, err
}

func addActivity(tx Transaction, panelID string, user User, kind domain.EntityKind, name, text string) error {
	_, err := tx.AddActivity(Activity{
		ID:         tx.NewID(),
		PanelID:    panelID,
		User:       user.Name,
		EntityKind: kind,
		EntityName: name,
		Text:       text,
		CreatedAt:  tx.Now(),
	})
	return err
}

// sumChildStats aggregates child panel stats by plain addition. Entities
// present on several children are counted once per child; the reviewer union
// is deduplicated.
func sumChildStats(view TransactionView, childIDs []string) domain.SnapshotStats {
	var stats domain.SnapshotStats
	reviewers := map[string]bool{}
	for _, childID := range childIDs {
		child, ok := view.ActiveSnapshot(childID)
		if !ok {
			continue
		}
		stats.NumberOfEntities += child.Stats.NumberOfEntities
		stats.NumberOfGenes += child.Stats.NumberOfGenes
		stats.NumberOfSTRs += child.Stats.NumberOfSTRs
		stats.NumberOfRegions += child.Stats.NumberOfRegions
		stats.NumberOfGreen += child.Stats.NumberOfGreen
		stats.NumberOfAmber += child.Stats.NumberOfAmber
		stats.NumberOfRed += child.Stats.NumberOfRed
		stats.NumberOfGray += child.Stats.NumberOfGray
		stats.NumberOfEvaluations += child.Stats.NumberOfEvaluations
		for _, r := range child.Stats.Reviewers {
			reviewers[r] = true
		}
	}
	for r := range reviewers {
		stats.Reviewers = append(stats.Reviewers, r)
	}
	sort.Strings(stats.Reviewers)
	return stats
}
