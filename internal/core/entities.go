package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"panelcore/pkg/domain"
)

// EntityInput describes a new entry. Kind-specific fields live in STR and
// Region; gene entries link to the reference catalog through GeneSymbol.
type EntityInput struct {
	Kind                domain.EntityKind
	Name                string
	GeneSymbol          string
	ModeOfInheritance   string
	ModeOfPathogenicity string
	Penetrance          string
	Publications        []string
	Phenotypes          []string
	Transcript          []string
	Tags                []string
	Sources             []string
	Rating              domain.Rating
	CurrentDiagnostic   bool
	ClinicallyRelevant  bool
	Comment             string
	// Flagged keeps a curator-supplied entry out of the derived rating until
	// it is reviewed. External additions are always flagged.
	Flagged bool
	STR     *domain.STRFields
	Region  *domain.RegionFields
}

func (in EntityInput) validate() error {
	if !domain.IsValidEntityName(in.Name) {
		return domain.ErrValidation{Field: "name", Message: fmt.Sprintf("invalid entity name %q", in.Name)}
	}
	if in.ModeOfInheritance != "" && !domain.IsValidMOI(in.ModeOfInheritance) {
		return domain.ErrValidation{Field: "mode_of_inheritance", Message: fmt.Sprintf("unrecognised mode of inheritance %q", in.ModeOfInheritance)}
	}
	for _, src := range in.Sources {
		if !domain.IsKnownSource(src) {
			return domain.ErrValidation{Field: "sources", Message: fmt.Sprintf("unknown source %q", src)}
		}
	}
	switch in.Kind {
	case domain.KindGene:
	case domain.KindSTR:
		if in.STR == nil {
			return domain.ErrValidation{Field: "str", Message: "STR fields required"}
		}
		if !domain.IsValidChromosome(in.STR.Chromosome) {
			return domain.ErrValidation{Field: "chromosome", Message: fmt.Sprintf("invalid chromosome %q", in.STR.Chromosome)}
		}
		if !domain.IsValidRepeatedSequence(in.STR.RepeatedSequence) {
			return domain.ErrValidation{Field: "repeated_sequence", Message: fmt.Sprintf("invalid repeated sequence %q", in.STR.RepeatedSequence)}
		}
		if in.STR.PathogenicRepeats < in.STR.NormalRepeats {
			return domain.ErrValidation{Field: "pathogenic_repeats", Message: "pathogenic repeat count below normal repeat count"}
		}
	case domain.KindRegion:
		if in.Region == nil {
			return domain.ErrValidation{Field: "region", Message: "region fields required"}
		}
		if !domain.IsValidChromosome(in.Region.Chromosome) {
			return domain.ErrValidation{Field: "chromosome", Message: fmt.Sprintf("invalid chromosome %q", in.Region.Chromosome)}
		}
		switch in.Region.TypeOfVariants {
		case domain.VariantCNVLoss:
			if in.Region.HaploinsufficiencyScore == "" {
				return domain.ErrValidation{Field: "haploinsufficiency_score", Message: "required for loss regions"}
			}
		case domain.VariantCNVGain:
			if in.Region.TriplosensitivityScore == "" {
				return domain.ErrValidation{Field: "triplosensitivity_score", Message: "required for gain regions"}
			}
		case domain.VariantSmall:
		default:
			return domain.ErrValidation{Field: "type_of_variants", Message: fmt.Sprintf("unknown variant type %q", in.Region.TypeOfVariants)}
		}
	default:
		return domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown entity kind %q", in.Kind)}
	}
	return nil
}

// AddEntity adds an entry to the panel. Curator additions bump the panel's
// minor version first; external additions land flagged on the current version
// and await curation.
func (s *Service) AddEntity(ctx context.Context, panelID string, input EntityInput, user User) (entry EntityRecord, err error) {
	defer func(start time.Time) { s.observe(ctx, "add_entity", start, err) }(time.Now())

	if err = input.validate(); err != nil {
		return EntityRecord{}, err
	}
	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		active, ok := view.ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		if active.IsSuperPanel() {
			return domain.ErrValidation{Field: "panel", Message: "super-panels own no entries of their own"}
		}
		if _, exists := active.FindEntry(input.Kind, input.Name); exists {
			return domain.ErrConflict{Entity: domain.EntityType(input.Kind), ID: input.Name, Reason: "already on panel"}
		}

		gene, err := resolveGene(view, input)
		if err != nil {
			return err
		}

		if user.IsGEL() {
			bumped, err := bumpPanel(tx, panelID, IncrementOptions{Comment: fmt.Sprintf("Added %s", input.Name)}, user, &frozen, map[string]bool{})
			if err != nil {
				return err
			}
			active = bumped
		}

		entry = buildEntry(tx, input, gene, user)
		if _, err := tx.UpdatePanelSnapshot(active.ID, func(snap *PanelSnapshot) error {
			snap.Entries = append(snap.Entries, entry)
			snap.Stats = domain.ComputeStats(snap.Entries)
			return nil
		}); err != nil {
			return err
		}
		for _, tag := range input.Tags {
			if _, err := tx.EnsureTag(tag); err != nil {
				return err
			}
		}
		if err := refreshSuperStats(tx, panelID, map[string]bool{}); err != nil {
			return err
		}
		return addActivity(tx, panelID, user, input.Kind, input.Name, fmt.Sprintf("%s was added", entry.Label()))
	})
	if err != nil {
		return EntityRecord{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return entry, nil
}

// resolveGene validates the catalog link and returns the denormalised gene
// data for the entry. Gene entries require an active catalog record; STR and
// region entries link optionally.
func resolveGene(view TransactionView, input EntityInput) (*domain.GeneData, error) {
	symbol := input.GeneSymbol
	if symbol == "" && input.Kind == domain.KindGene {
		symbol = input.Name
	}
	if symbol == "" {
		return nil, nil
	}
	ref, ok := view.FindGeneReference(symbol)
	if input.Kind == domain.KindGene {
		if !ok {
			return nil, domain.ErrNotFound{Entity: "gene", ID: symbol}
		}
		if !ref.Active {
			return nil, domain.ErrValidation{Field: "gene_symbol", Message: fmt.Sprintf("gene %s is inactive in the reference catalog", symbol)}
		}
	}
	if !ok {
		return nil, nil
	}
	return ref.Data(), nil
}

// buildEntry constructs the entry value with its initial evidence and
// evaluation.
func buildEntry(tx Transaction, input EntityInput, gene *domain.GeneData, user User) EntityRecord {
	now := tx.Now()
	entry := EntityRecord{
		Base:                domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now},
		Kind:                input.Kind,
		Name:                input.Name,
		Gene:                gene,
		GeneSymbol:          input.GeneSymbol,
		Transcript:          append([]string(nil), input.Transcript...),
		ModeOfInheritance:   input.ModeOfInheritance,
		ModeOfPathogenicity: input.ModeOfPathogenicity,
		Penetrance:          input.Penetrance,
		Publications:        append([]string(nil), input.Publications...),
		Phenotypes:          append([]string(nil), input.Phenotypes...),
		Tags:                append([]string(nil), input.Tags...),
		Flagged:             !user.IsGEL() || input.Flagged,
		STR:                 cloneSTR(input.STR),
		Region:              cloneRegion(input.Region),
	}
	if input.Kind == domain.KindGene && entry.GeneSymbol == "" {
		entry.GeneSymbol = input.Name
	}
	for _, src := range input.Sources {
		entry.Evidence = append(entry.Evidence, domain.Evidence{
			ID:           tx.NewID(),
			Name:         src,
			Rating:       5,
			Reviewer:     user.Name,
			ReviewerType: user.Type,
			CreatedAt:    now,
		})
	}
	if user.IsGEL() && input.Rating != "" {
		if name, ok := domain.ExpertReviewForRating(input.Rating); ok {
			entry.Evidence = append(entry.Evidence, domain.Evidence{
				ID:           tx.NewID(),
				Name:         name,
				Rating:       5,
				Reviewer:     user.Name,
				ReviewerType: user.Type,
				CreatedAt:    now,
			})
		}
	}
	if input.Rating != "" || input.Comment != "" || input.ModeOfInheritance != "" || len(input.Publications) > 0 || len(input.Phenotypes) > 0 {
		ev := domain.Evaluation{
			ID:                  tx.NewID(),
			User:                user.Name,
			UserType:            user.Type,
			Rating:              input.Rating,
			ModeOfInheritance:   input.ModeOfInheritance,
			ModeOfPathogenicity: input.ModeOfPathogenicity,
			Publications:        append([]string(nil), input.Publications...),
			Phenotypes:          append([]string(nil), input.Phenotypes...),
			CurrentDiagnostic:   input.CurrentDiagnostic,
			ClinicallyRelevant:  input.ClinicallyRelevant,
			CreatedAt:           now,
		}
		if input.Comment != "" {
			ev.Comments = append(ev.Comments, domain.Comment{
				ID:        tx.NewID(),
				User:      user.Name,
				Text:      input.Comment,
				CreatedAt: now,
			})
		}
		entry.Evaluations = append(entry.Evaluations, ev)
	}
	entry.Track = append(entry.Track, domain.TrackRecord{
		ID:          tx.NewID(),
		User:        user.Name,
		Issues:      []string{"entity_added"},
		Description: fmt.Sprintf("%s was added by %s", entry.Label(), user.Name),
		CreatedAt:   now,
	})
	entry.SavedGELStatus = domain.EvidenceStatus(entry)
	return entry
}

// EntityUpdate carries optional field changes. Nil pointers leave the field
// untouched.
type EntityUpdate struct {
	Name                *string
	ModeOfInheritance   *string
	ModeOfPathogenicity *string
	Penetrance          *string
	Publications        *[]string
	Phenotypes          *[]string
	Transcript          *[]string
	Tags                *[]string
	Flagged             *bool
	Ready               *bool
	STR                 *domain.STRFields
	Region              *domain.RegionFields
}

// UpdateEntity applies a curator edit to an entry after a minor version bump,
// recording one track entry per changed field.
func (s *Service) UpdateEntity(ctx context.Context, panelID string, kind domain.EntityKind, name string, update EntityUpdate, user User) (entry EntityRecord, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_entity", start, err) }(time.Now())

	if !user.IsGEL() {
		return EntityRecord{}, domain.ErrValidation{Field: "user", Message: "only curators may edit entries"}
	}
	if update.Name != nil && !domain.IsValidEntityName(*update.Name) {
		return EntityRecord{}, domain.ErrValidation{Field: "name", Message: fmt.Sprintf("invalid entity name %q", *update.Name)}
	}
	if update.ModeOfInheritance != nil && *update.ModeOfInheritance != "" && !domain.IsValidMOI(*update.ModeOfInheritance) {
		return EntityRecord{}, domain.ErrValidation{Field: "mode_of_inheritance", Message: fmt.Sprintf("unrecognised mode of inheritance %q", *update.ModeOfInheritance)}
	}
	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		active, ok := tx.Snapshot().ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		if _, exists := active.FindEntry(kind, name); !exists {
			return domain.ErrNotFound{Entity: domain.EntityType(kind), ID: name}
		}
		if update.Name != nil && *update.Name != name {
			if _, taken := active.FindEntry(kind, *update.Name); taken {
				return domain.ErrConflict{Entity: domain.EntityType(kind), ID: *update.Name, Reason: "already on panel"}
			}
		}
		bumped, err := bumpPanel(tx, panelID, IncrementOptions{Comment: fmt.Sprintf("Updated %s", name)}, user, &frozen, map[string]bool{})
		if err != nil {
			return err
		}
		_, err = tx.UpdatePanelSnapshot(bumped.ID, func(snap *PanelSnapshot) error {
			for i := range snap.Entries {
				if snap.Entries[i].Kind != kind || snap.Entries[i].Name != name {
					continue
				}
				entry = applyEntityUpdate(tx, snap.Entries[i], update, user)
				snap.Entries[i] = entry
				snap.Stats = domain.ComputeStats(snap.Entries)
				return nil
			}
			return domain.ErrNotFound{Entity: domain.EntityType(kind), ID: name}
		})
		if err != nil {
			return err
		}
		if err := refreshSuperStats(tx, panelID, map[string]bool{}); err != nil {
			return err
		}
		return addActivity(tx, panelID, user, kind, entry.Name, fmt.Sprintf("%s was updated", entry.Label()))
	})
	if err != nil {
		return EntityRecord{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return entry, nil
}

func applyEntityUpdate(tx Transaction, entry EntityRecord, update EntityUpdate, user User) EntityRecord {
	now := tx.Now()
	var changed []string
	track := func(field, desc string) {
		changed = append(changed, field)
		entry.Track = append(entry.Track, domain.TrackRecord{
			ID:          tx.NewID(),
			User:        user.Name,
			Issues:      []string{field},
			Description: desc,
			CreatedAt:   now,
		})
	}
	if update.Name != nil && *update.Name != entry.Name {
		track("entity_renamed", fmt.Sprintf("%s was renamed to %s", entry.Name, *update.Name))
		entry.Name = *update.Name
		if entry.Kind == domain.KindGene {
			entry.GeneSymbol = *update.Name
		}
	}
	if update.ModeOfInheritance != nil && *update.ModeOfInheritance != entry.ModeOfInheritance {
		track("mode_of_inheritance", fmt.Sprintf("Mode of inheritance set to %s", *update.ModeOfInheritance))
		entry.ModeOfInheritance = *update.ModeOfInheritance
	}
	if update.ModeOfPathogenicity != nil && *update.ModeOfPathogenicity != entry.ModeOfPathogenicity {
		track("mode_of_pathogenicity", fmt.Sprintf("Mode of pathogenicity set to %s", *update.ModeOfPathogenicity))
		entry.ModeOfPathogenicity = *update.ModeOfPathogenicity
	}
	if update.Penetrance != nil && *update.Penetrance != entry.Penetrance {
		track("penetrance", fmt.Sprintf("Penetrance set to %s", *update.Penetrance))
		entry.Penetrance = *update.Penetrance
	}
	if update.Publications != nil {
		track("publications", fmt.Sprintf("Publications set to %s", strings.Join(*update.Publications, "; ")))
		entry.Publications = append([]string(nil), (*update.Publications)...)
	}
	if update.Phenotypes != nil {
		track("phenotypes", fmt.Sprintf("Phenotypes set to %s", strings.Join(*update.Phenotypes, "; ")))
		entry.Phenotypes = append([]string(nil), (*update.Phenotypes)...)
	}
	if update.Transcript != nil {
		track("transcript", fmt.Sprintf("Transcript set to %s", strings.Join(*update.Transcript, "; ")))
		entry.Transcript = append([]string(nil), (*update.Transcript)...)
	}
	if update.Tags != nil {
		track("tags", fmt.Sprintf("Tags set to %s", strings.Join(*update.Tags, "; ")))
		entry.Tags = append([]string(nil), (*update.Tags)...)
	}
	if update.Flagged != nil && *update.Flagged != entry.Flagged {
		track("flagged", fmt.Sprintf("Flagged set to %t", *update.Flagged))
		entry.Flagged = *update.Flagged
	}
	if update.Ready != nil && *update.Ready != entry.Ready {
		track("ready", fmt.Sprintf("Ready set to %t", *update.Ready))
		entry.Ready = *update.Ready
	}
	if update.STR != nil {
		track("str_fields", "STR coordinates updated")
		entry.STR = cloneSTR(update.STR)
	}
	if update.Region != nil {
		track("region_fields", "Region coordinates updated")
		entry.Region = cloneRegion(update.Region)
	}
	if len(changed) > 0 {
		entry.UpdatedAt = now
	}
	entry.SavedGELStatus = domain.EvidenceStatus(entry)
	return entry
}

// DeleteEntity removes an entry after a minor version bump. The removed entry
// stays visible on frozen versions.
func (s *Service) DeleteEntity(ctx context.Context, panelID string, kind domain.EntityKind, name string, user User) (err error) {
	defer func(start time.Time) { s.observe(ctx, "delete_entity", start, err) }(time.Now())

	if !user.IsGEL() {
		return domain.ErrValidation{Field: "user", Message: "only curators may remove entries"}
	}
	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		active, ok := tx.Snapshot().ActiveSnapshot(panelID)
		if !ok {
			return domain.ErrNotFound{Entity: "panel", ID: panelID}
		}
		entry, exists := active.FindEntry(kind, name)
		if !exists {
			return domain.ErrNotFound{Entity: domain.EntityType(kind), ID: name}
		}
		bumped, err := bumpPanel(tx, panelID, IncrementOptions{Comment: fmt.Sprintf("Removed %s", name)}, user, &frozen, map[string]bool{})
		if err != nil {
			return err
		}
		if _, err := tx.UpdatePanelSnapshot(bumped.ID, func(snap *PanelSnapshot) error {
			kept := snap.Entries[:0]
			for _, e := range snap.Entries {
				if e.Kind == kind && e.Name == name {
					continue
				}
				kept = append(kept, e)
			}
			snap.Entries = kept
			snap.Stats = domain.ComputeStats(snap.Entries)
			return nil
		}); err != nil {
			return err
		}
		if err := refreshSuperStats(tx, panelID, map[string]bool{}); err != nil {
			return err
		}
		return addActivity(tx, panelID, user, kind, name, fmt.Sprintf("%s was removed", entry.Label()))
	})
	if err != nil {
		return err
	}
	s.archiveFrozen(ctx, frozen)
	return nil
}

// refreshSuperStats recomputes the cached aggregate stats on super-panels
// referencing the given panel, in place, without a version bump.
func refreshSuperStats(tx Transaction, panelID string, visited map[string]bool) error {
	for _, superID := range tx.Snapshot().SuperPanelsReferencing(panelID) {
		if visited[superID] {
			continue
		}
		visited[superID] = true
		super, ok := tx.Snapshot().ActiveSnapshot(superID)
		if !ok {
			continue
		}
		if _, err := tx.UpdatePanelSnapshot(super.ID, func(snap *PanelSnapshot) error {
			snap.Stats = sumChildStats(tx.Snapshot(), snap.ChildPanels)
			return nil
		}); err != nil {
			return err
		}
		if err := refreshSuperStats(tx, superID, visited); err != nil {
			return err
		}
	}
	return nil
}

func cloneSTR(in *domain.STRFields) *domain.STRFields {
	if in == nil {
		return nil
	}
	cp := *in
	if in.Position37 != nil {
		pos := *in.Position37
		cp.Position37 = &pos
	}
	return &cp
}

func cloneRegion(in *domain.RegionFields) *domain.RegionFields {
	if in == nil {
		return nil
	}
	cp := *in
	if in.Position37 != nil {
		pos := *in.Position37
		cp.Position37 = &pos
	}
	return &cp
}
