package domain

// GeneReference is one row of the reference gene catalog. Panels never point
// at a reference directly; entries copy the data they need at creation time
// and are refreshed explicitly during catalog updates.
type GeneReference struct {
	Base
	GeneSymbol           string `json:"gene_symbol"`
	GeneName             string `json:"gene_name,omitempty"`
	HGNCID               string `json:"hgnc_id,omitempty"`
	HGNCSymbol           string `json:"hgnc_symbol,omitempty"`
	HGNCRelease          string `json:"hgnc_release,omitempty"`
	HGNCDateSymbolChanged string `json:"hgnc_date_symbol_changed,omitempty"`
	// EnsemblGenes maps genome build to Ensembl release to gene coordinates.
	EnsemblGenes map[string]map[string]EnsemblGene `json:"ensembl_genes,omitempty"`
	OMIMGene     []string                          `json:"omim_gene,omitempty"`
	Alias        []string                          `json:"alias,omitempty"`
	AliasName    []string                          `json:"alias_name,omitempty"`
	Biotype      string                            `json:"biotype,omitempty"`
	// Active is false for genes withdrawn from the catalog or lacking any
	// Ensembl record. Inactive genes cannot back new entries.
	Active bool `json:"active"`
}

// EnsemblGene is one build/release coordinate record.
type EnsemblGene struct {
	EnsemblID string `json:"ensembl_id"`
	Location  string `json:"location,omitempty"`
}

// HasEnsembl reports whether any build carries a coordinate record.
func (g GeneReference) HasEnsembl() bool {
	for _, releases := range g.EnsemblGenes {
		if len(releases) > 0 {
			return true
		}
	}
	return false
}

// Data projects the reference into the denormalised copy embedded in entries.
func (g GeneReference) Data() *GeneData {
	return &GeneData{
		GeneSymbol:   g.GeneSymbol,
		GeneName:     g.GeneName,
		HGNCID:       g.HGNCID,
		HGNCSymbol:   g.HGNCSymbol,
		OMIMGene:     append([]string(nil), g.OMIMGene...),
		Alias:        append([]string(nil), g.Alias...),
		Biotype:      g.Biotype,
		EnsemblGenes: cloneEnsembl(g.EnsemblGenes),
	}
}

// GeneData is the denormalised reference copy stored inside entity records.
type GeneData struct {
	GeneSymbol   string                            `json:"gene_symbol"`
	GeneName     string                            `json:"gene_name,omitempty"`
	HGNCID       string                            `json:"hgnc_id,omitempty"`
	HGNCSymbol   string                            `json:"hgnc_symbol,omitempty"`
	OMIMGene     []string                          `json:"omim_gene,omitempty"`
	Alias        []string                          `json:"alias,omitempty"`
	Biotype      string                            `json:"biotype,omitempty"`
	EnsemblGenes map[string]map[string]EnsemblGene `json:"ensembl_genes,omitempty"`
}

func cloneEnsembl(in map[string]map[string]EnsemblGene) map[string]map[string]EnsemblGene {
	if in == nil {
		return nil
	}
	out := make(map[string]map[string]EnsemblGene, len(in))
	for build, releases := range in {
		inner := make(map[string]EnsemblGene, len(releases))
		for release, gene := range releases {
			inner[release] = gene
		}
		out[build] = inner
	}
	return out
}
