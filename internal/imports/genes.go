package imports

import (
	"encoding/json"
	"fmt"
	"io"

	"panelcore/internal/core"
	"panelcore/pkg/domain"
)

// geneCollectionFile mirrors the reference-importer JSON layout. update_symbol
// elements are 2-tuples of [new_gene_object, old_symbol].
type geneCollectionFile struct {
	Insert       []domain.GeneReference `json:"insert"`
	Update       []domain.GeneReference `json:"update"`
	Delete       []string               `json:"delete"`
	UpdateSymbol []json.RawMessage      `json:"update_symbol"`
}

// ParseGeneCollection reads a gene-reference revision file.
func ParseGeneCollection(r io.Reader) (core.GeneCollectionUpdate, error) {
	var file geneCollectionFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return core.GeneCollectionUpdate{}, fmt.Errorf("read gene collection: %w", err)
	}

	update := core.GeneCollectionUpdate{
		Insert: file.Insert,
		Update: file.Update,
		Delete: file.Delete,
	}
	for i, raw := range file.UpdateSymbol {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return core.GeneCollectionUpdate{}, fmt.Errorf("update_symbol[%d]: expected [gene, old_symbol] pair", i)
		}
		var change core.SymbolChange
		if err := json.Unmarshal(pair[0], &change.Gene); err != nil {
			return core.GeneCollectionUpdate{}, fmt.Errorf("update_symbol[%d]: %w", i, err)
		}
		if err := json.Unmarshal(pair[1], &change.OldSymbol); err != nil {
			return core.GeneCollectionUpdate{}, fmt.Errorf("update_symbol[%d]: %w", i, err)
		}
		if change.Gene.GeneSymbol == "" || change.OldSymbol == "" {
			return core.GeneCollectionUpdate{}, fmt.Errorf("update_symbol[%d]: both symbols required", i)
		}
		update.UpdateSymbol = append(update.UpdateSymbol, change)
	}
	return update, nil
}
