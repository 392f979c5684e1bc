package core

import (
	"context"
	"fmt"

	"panelcore/pkg/domain"
)

// changedSnapshots extracts the after-state of every panel snapshot touched
// by the transaction.
func changedSnapshots(changes []domain.Change) []PanelSnapshot {
	var out []PanelSnapshot
	for _, c := range changes {
		if c.Entity != domain.EntityPanelSnapshot || c.Action == domain.ActionDelete {
			continue
		}
		if snapshot, ok := c.After.(PanelSnapshot); ok {
			out = append(out, snapshot)
		}
	}
	return out
}

// entityNameRule blocks commits that introduce entry names outside the valid
// format.
type entityNameRule struct{}

func (entityNameRule) Name() string { return "entity_name_format" }

func (entityNameRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (Result, error) {
	var result Result
	for _, snapshot := range changedSnapshots(changes) {
		for _, entry := range snapshot.Entries {
			if !domain.IsValidEntityName(entry.Name) {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "entity_name_format",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("entry name %q contains invalid characters", entry.Name),
					Entity:   domain.EntityPanelSnapshot,
					EntityID: snapshot.ID,
				})
			}
		}
	}
	return result, nil
}

// strSequenceRule blocks STR entries whose repeated sequence leaves the DNA
// alphabet.
type strSequenceRule struct{}

func (strSequenceRule) Name() string { return "str_repeated_sequence" }

func (strSequenceRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (Result, error) {
	var result Result
	for _, snapshot := range changedSnapshots(changes) {
		for _, entry := range snapshot.Entries {
			if entry.Kind != domain.KindSTR || entry.STR == nil {
				continue
			}
			if !domain.IsValidRepeatedSequence(entry.STR.RepeatedSequence) {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "str_repeated_sequence",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("STR %s repeated sequence %q is not ACGTN", entry.Name, entry.STR.RepeatedSequence),
					Entity:   domain.EntityPanelSnapshot,
					EntityID: snapshot.ID,
				})
			}
		}
	}
	return result, nil
}

// regionScoresRule blocks loss regions without a haploinsufficiency score and
// gain regions without a triplosensitivity score.
type regionScoresRule struct{}

func (regionScoresRule) Name() string { return "region_variant_scores" }

func (regionScoresRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (Result, error) {
	var result Result
	for _, snapshot := range changedSnapshots(changes) {
		for _, entry := range snapshot.Entries {
			if entry.Kind != domain.KindRegion || entry.Region == nil {
				continue
			}
			var missing string
			switch entry.Region.TypeOfVariants {
			case domain.VariantCNVLoss:
				if entry.Region.HaploinsufficiencyScore == "" {
					missing = "haploinsufficiency score"
				}
			case domain.VariantCNVGain:
				if entry.Region.TriplosensitivityScore == "" {
					missing = "triplosensitivity score"
				}
			}
			if missing != "" {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "region_variant_scores",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("region %s requires a %s", entry.Name, missing),
					Entity:   domain.EntityPanelSnapshot,
					EntityID: snapshot.ID,
				})
			}
		}
	}
	return result, nil
}

// versionOrderRule blocks a changed panel whose active version does not
// strictly exceed every frozen version.
type versionOrderRule struct{}

func (versionOrderRule) Name() string { return "version_order" }

func (versionOrderRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (Result, error) {
	var result Result
	seen := map[string]bool{}
	for _, snapshot := range changedSnapshots(changes) {
		if seen[snapshot.PanelID] {
			continue
		}
		seen[snapshot.PanelID] = true
		panel, ok := view.FindPanel(snapshot.PanelID)
		if !ok {
			continue
		}
		active, ok := view.FindPanelSnapshot(panel.ActiveSnapshotID)
		if !ok {
			continue
		}
		for _, frozen := range view.ListHistoricalSnapshots(snapshot.PanelID) {
			if active.Version.Less(frozen.Version) {
				result.Violations = append(result.Violations, domain.Violation{
					Rule:     "version_order",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("frozen version %s exceeds active version %s", frozen.Version, active.Version),
					Entity:   domain.EntityPanel,
					EntityID: snapshot.PanelID,
				})
				break
			}
		}
	}
	return result, nil
}

// moiVocabularyRule warns on entry MOI values outside the closed vocabulary.
// Legacy values on old entries are tolerated, so the severity stays warn.
type moiVocabularyRule struct{}

func (moiVocabularyRule) Name() string { return "moi_vocabulary" }

func (moiVocabularyRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (Result, error) {
	var result Result
	for _, snapshot := range changedSnapshots(changes) {
		for _, entry := range snapshot.Entries {
			if entry.ModeOfInheritance == "" || domain.IsValidMOI(entry.ModeOfInheritance) {
				continue
			}
			result.Violations = append(result.Violations, domain.Violation{
				Rule:     "moi_vocabulary",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("entry %s carries unrecognised mode of inheritance %q", entry.Name, entry.ModeOfInheritance),
				Entity:   domain.EntityPanelSnapshot,
				EntityID: snapshot.ID,
			})
		}
	}
	return result, nil
}
