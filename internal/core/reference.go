package core

import (
	"context"
	"fmt"
	"time"

	"panelcore/pkg/domain"
)

// SymbolChange renames one catalog gene. Gene carries the full new record;
// OldSymbol identifies the record being replaced.
type SymbolChange struct {
	Gene      GeneReference
	OldSymbol string
}

// GeneCollectionUpdate is one batch revision of the gene reference catalog.
type GeneCollectionUpdate struct {
	Insert       []GeneReference
	Update       []GeneReference
	Delete       []string
	UpdateSymbol []SymbolChange
}

// CollectionUpdateResult summarises what a catalog update changed.
type CollectionUpdateResult struct {
	Inserted    int
	Updated     int
	Deactivated int
	Renamed     int
	// BumpedPanels lists panels whose entries were rewritten by a rename.
	BumpedPanels []string
}

// UpdateGeneCollection applies a catalog revision in one transaction. Genes
// are never removed: deletions and records lacking Ensembl annotation are
// deactivated. Symbol renames cascade into every panel carrying the gene,
// bumping each panel's minor version and rewriting the denormalised entry
// data.
func (s *Service) UpdateGeneCollection(ctx context.Context, update GeneCollectionUpdate, user User) (result CollectionUpdateResult, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_gene_collection", start, err) }(time.Now())

	if !user.IsGEL() {
		return CollectionUpdateResult{}, domain.ErrValidation{Field: "user", Message: "only curators may update the gene catalog"}
	}
	var frozen []frozenPayload
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		now := tx.Now()
		for _, gene := range update.Insert {
			gene.Base = domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now}
			gene.Active = gene.HasEnsembl()
			if _, err := tx.CreateGeneReference(gene); err != nil {
				return err
			}
			result.Inserted++
			if !gene.Active {
				result.Deactivated++
			}
		}
		for _, gene := range update.Update {
			incoming := gene
			if _, err := tx.UpdateGeneReference(incoming.GeneSymbol, func(ref *GeneReference) error {
				base := ref.Base
				*ref = incoming
				ref.Base = base
				ref.UpdatedAt = now
				ref.Active = incoming.HasEnsembl()
				return nil
			}); err != nil {
				return err
			}
			result.Updated++
			if !incoming.HasEnsembl() {
				result.Deactivated++
			}
		}
		for _, symbol := range update.Delete {
			if _, err := tx.UpdateGeneReference(symbol, func(ref *GeneReference) error {
				ref.Active = false
				ref.UpdatedAt = now
				return nil
			}); err != nil {
				return err
			}
			result.Deactivated++
		}
		for _, change := range update.UpdateSymbol {
			bumped, err := renameGene(tx, change, user, &frozen)
			if err != nil {
				return err
			}
			result.Renamed++
			result.BumpedPanels = append(result.BumpedPanels, bumped...)
		}
		return nil
	})
	if err != nil {
		return CollectionUpdateResult{}, err
	}
	s.archiveFrozen(ctx, frozen)
	return result, nil
}

// renameGene rewrites the catalog record under its new symbol and walks every
// panel carrying the old symbol, bumping the panel and refreshing the
// denormalised gene data on its entries.
func renameGene(tx Transaction, change SymbolChange, user User, frozen *[]frozenPayload) ([]string, error) {
	incoming := change.Gene
	if incoming.GeneSymbol == "" {
		return nil, domain.ErrValidation{Field: "gene_symbol", Message: "new symbol required"}
	}
	now := tx.Now()
	updated, err := tx.UpdateGeneReference(change.OldSymbol, func(ref *GeneReference) error {
		base := ref.Base
		*ref = incoming
		ref.Base = base
		ref.UpdatedAt = now
		ref.Active = incoming.HasEnsembl()
		return nil
	})
	if err != nil {
		return nil, err
	}
	data := updated.Data()

	var bumped []string
	for _, panel := range tx.Snapshot().ListPanels() {
		if panel.Status == domain.StatusDeleted {
			continue
		}
		active, ok := tx.Snapshot().ActiveSnapshot(panel.ID)
		if !ok || active.IsSuperPanel() {
			continue
		}
		carries := false
		for _, entry := range active.Entries {
			if entry.GeneSymbol == change.OldSymbol {
				carries = true
				break
			}
		}
		if !carries {
			continue
		}
		next, err := bumpPanel(tx, panel.ID, IncrementOptions{
			Comment: fmt.Sprintf("Gene %s renamed to %s", change.OldSymbol, updated.GeneSymbol),
		}, user, frozen, map[string]bool{})
		if err != nil {
			return nil, err
		}
		if _, err := tx.UpdatePanelSnapshot(next.ID, func(snap *PanelSnapshot) error {
			for i := range snap.Entries {
				e := &snap.Entries[i]
				if e.GeneSymbol != change.OldSymbol {
					continue
				}
				oldName := e.Name
				e.GeneSymbol = updated.GeneSymbol
				e.Gene = data
				if e.Kind == domain.KindGene {
					e.Name = updated.GeneSymbol
				}
				e.UpdatedAt = now
				e.Track = append(e.Track, domain.TrackRecord{
					ID:          tx.NewID(),
					User:        user.Name,
					Issues:      []string{"gene_renamed"},
					Description: fmt.Sprintf("Gene %s renamed to %s", oldName, updated.GeneSymbol),
					CreatedAt:   now,
				})
			}
			return nil
		}); err != nil {
			return nil, err
		}
		if err := addActivity(tx, panel.ID, user, domain.KindGene, updated.GeneSymbol, fmt.Sprintf("Gene %s renamed to %s", change.OldSymbol, updated.GeneSymbol)); err != nil {
			return nil, err
		}
		bumped = append(bumped, panel.ID)
	}
	return bumped, nil
}

// GetGene returns one catalog record by symbol.
func (s *Service) GetGene(ctx context.Context, symbol string) (GeneReference, error) {
	var gene GeneReference
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindGeneReference(symbol)
		if !ok {
			return domain.ErrNotFound{Entity: "gene", ID: symbol}
		}
		gene = found
		return nil
	})
	if err != nil {
		return GeneReference{}, err
	}
	return gene, nil
}

// ListGenes lists the catalog, optionally restricted to active records.
func (s *Service) ListGenes(ctx context.Context, activeOnly bool) []GeneReference {
	var out []GeneReference
	for _, g := range s.store.ListGeneReferences() {
		if activeOnly && !g.Active {
			continue
		}
		out = append(out, g)
	}
	return out
}
