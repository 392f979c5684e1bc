package core

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"panelcore/pkg/domain"
)

// ReleasePanelInput selects one panel for a release.
type ReleasePanelInput struct {
	PanelID string
	// Promote makes the panel public when the release deploys.
	Promote bool
}

// CreateRelease pins the current active snapshot of every selected panel
// under a named release. Deployment happens separately.
func (s *Service) CreateRelease(ctx context.Context, name, promotionComment string, panels []ReleasePanelInput, user User) (release Release, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_release", start, err) }(time.Now())

	if !user.IsGEL() {
		return Release{}, domain.ErrValidation{Field: "user", Message: "only curators may create releases"}
	}
	if strings.TrimSpace(name) == "" {
		return Release{}, domain.ErrValidation{Field: "name", Message: "release name required"}
	}
	if len(panels) == 0 {
		return Release{}, domain.ErrValidation{Field: "panels", Message: "release needs at least one panel"}
	}
	if promotionComment != "" {
		if _, err := template.New("promotion").Parse(promotionComment); err != nil {
			return Release{}, domain.ErrValidation{Field: "promotion_comment", Message: fmt.Sprintf("invalid template: %v", err)}
		}
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		now := tx.Now()
		release = Release{
			Base:             domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now},
			Name:             name,
			PromotionComment: promotionComment,
		}
		for _, input := range panels {
			active, ok := view.ActiveSnapshot(input.PanelID)
			if !ok {
				return domain.ErrNotFound{Entity: "panel", ID: input.PanelID}
			}
			release.Panels = append(release.Panels, domain.ReleasePanel{
				ID:         tx.NewID(),
				PanelID:    input.PanelID,
				SnapshotID: active.ID,
				Promote:    input.Promote,
			})
		}
		release, err = tx.CreateRelease(release)
		return err
	})
	if err != nil {
		return Release{}, err
	}
	return release, nil
}

// DeployRelease signs off every panel pinned in the release at a new major
// version, promoting flagged ones to public. Deploys are idempotent: a
// finished release reports ErrAlreadyDeployed, and an unfinished start blocks
// retries until the soft time-out elapses.
func (s *Service) DeployRelease(ctx context.Context, releaseID string, user User) (release Release, err error) {
	defer func(start time.Time) { s.observe(ctx, "deploy_release", start, err) }(time.Now())

	if !user.IsGEL() {
		return Release{}, domain.ErrValidation{Field: "user", Message: "only curators may deploy releases"}
	}

	// The start marker is committed before any panel work so a crashed deploy
	// leaves a visible claim. Retries are allowed once the claim goes stale.
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateRelease(releaseID, func(r *Release) error {
			now := tx.Now()
			if r.Deployment != nil {
				if r.Deployment.End != nil {
					return domain.ErrAlreadyDeployed{ReleaseID: releaseID}
				}
				if !r.Deployment.TimedOut(now) {
					return domain.ErrAlreadyDeployed{ReleaseID: releaseID}
				}
			}
			r.Deployment = &domain.ReleaseDeployment{Start: &now}
			return nil
		})
		return err
	})
	if err != nil {
		return Release{}, err
	}

	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRelease(releaseID)
		if !ok {
			return domain.ErrNotFound{Entity: "release", ID: releaseID}
		}
		deployments := make(map[string]domain.ReleasePanelDeployment, len(current.Panels))
		for _, rp := range current.Panels {
			deployment, err := deployReleasePanel(tx, current, rp, user, &frozen)
			if err != nil {
				return err
			}
			deployments[rp.ID] = deployment
		}
		release, err = tx.UpdateRelease(releaseID, func(r *Release) error {
			now := tx.Now()
			for i := range r.Panels {
				if d, ok := deployments[r.Panels[i].ID]; ok {
					deployment := d
					r.Panels[i].Deployment = &deployment
				}
			}
			r.Deployment.End = &now
			return nil
		})
		return err
	})
	if err != nil {
		return Release{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return release, nil
}

// deployReleasePanel performs the per-panel deploy step: major bump, sign-off
// of the new version, and the optional promotion to public.
func deployReleasePanel(tx Transaction, release Release, rp domain.ReleasePanel, user User, frozen *[]frozenPayload) (domain.ReleasePanelDeployment, error) {
	view := tx.Snapshot()
	panel, ok := view.FindPanel(rp.PanelID)
	if !ok {
		return domain.ReleasePanelDeployment{}, domain.ErrNotFound{Entity: "panel", ID: rp.PanelID}
	}
	before, ok := view.ActiveSnapshot(rp.PanelID)
	if !ok {
		return domain.ReleasePanelDeployment{}, domain.ErrNotFound{Entity: "panel snapshot", ID: panel.ActiveSnapshotID}
	}
	deployment := domain.ReleasePanelDeployment{
		BeforeID:          before.ID,
		SignedOffBeforeID: panel.SignedOffID,
		CommentBefore:     before.VersionComment,
	}

	comment := fmt.Sprintf("Release %s", release.Name)
	if rp.Promote && release.PromotionComment != "" {
		rendered, err := renderPromotionComment(release.PromotionComment, before.Version.IncrementMajor(), tx.Now())
		if err != nil {
			return domain.ReleasePanelDeployment{}, err
		}
		comment = rendered
	}

	after, err := bumpPanel(tx, rp.PanelID, IncrementOptions{Major: true, Comment: comment}, user, frozen, map[string]bool{})
	if err != nil {
		return domain.ReleasePanelDeployment{}, err
	}
	hist, err := signOffActive(tx, rp.PanelID, tx.Now(), user, frozen)
	if err != nil {
		return domain.ReleasePanelDeployment{}, err
	}
	if rp.Promote {
		if _, err := tx.UpdatePanel(rp.PanelID, func(p *Panel) error {
			if !p.Status.IsApproved() {
				p.Status = domain.StatusPublic
			}
			return nil
		}); err != nil {
			return domain.ReleasePanelDeployment{}, err
		}
	}

	deployment.AfterID = after.ID
	deployment.SignedOffAfterID = &hist.ID
	deployment.CommentAfter = comment
	return deployment, nil
}

// renderPromotionComment expands the release's comment template. Supported
// placeholders are {{.version}} and {{.now.yyyy_mm_dd_hh_mm}}.
func renderPromotionComment(tmpl string, version Version, now time.Time) (string, error) {
	parsed, err := template.New("promotion").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("promotion comment: %w", err)
	}
	data := map[string]any{
		"version": version.String(),
		"now": map[string]string{
			"yyyy_mm_dd_hh_mm": now.Format("2006_01_02_15_04"),
		},
	}
	var out strings.Builder
	if err := parsed.Execute(&out, data); err != nil {
		return "", fmt.Errorf("promotion comment: %w", err)
	}
	return out.String(), nil
}

// GetRelease returns a release by id.
func (s *Service) GetRelease(ctx context.Context, releaseID string) (Release, error) {
	var release Release
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindRelease(releaseID)
		if !ok {
			return domain.ErrNotFound{Entity: "release", ID: releaseID}
		}
		release = found
		return nil
	})
	if err != nil {
		return Release{}, err
	}
	return release, nil
}

// ListReleases lists releases in creation order.
func (s *Service) ListReleases(ctx context.Context) []Release {
	return s.store.ListReleases()
}
