// Package imports parses the upload formats fed into the curation service:
// tab-separated entity and review files and the gene-reference JSON. Parsing
// and validation collect row diagnostics across the whole file before any
// write happens, so a rejected upload never lands partially.
package imports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"panelcore/internal/core"
	"panelcore/pkg/domain"
)

// Entity file column indices. Gene rows carry the first 15 columns, STR rows
// 31, region rows 35; the trailing verbose-name column is optional.
const (
	colEntityName = iota
	colEntityType
	colGeneSymbol
	colSources
	colLevel4
	colLevel3
	colLevel2
	colMOI
	colPhenotypes
	colOMIM
	colOrphanet
	colHPO
	colPublications
	colDescription
	colFlagged
	colGELStatus
	colUserRatings
	colVersion
	colReady
	colModeOfPathogenicity
	colEnsembl37
	colEnsembl38
	colHGNC
	colChromosome
	colPos37Start
	colPos37End
	colPos38Start
	colPos38End
	colRepeatedSequence
	colNormalRepeats
	colPathogenicRepeats
	colHaploinsufficiency
	colTriplosensitivity
	colRequiredOverlap
	colTypeOfVariants
	colVerboseName
)

const (
	geneLineLength   = 15
	strLineLength    = 31
	regionLineLength = 35
)

// EntityRow is one parsed entity upload line, addressed to the panel named in
// its level4 column.
type EntityRow struct {
	Line  int
	Panel string
	Input core.EntityInput
}

// ParseEntityTSV reads a tab-separated entity upload. Syntactic problems are
// collected across all rows and returned as one ImportValidationError.
func ParseEntityTSV(r io.Reader) ([]EntityRow, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read entity upload: %w", err)
	}
	if len(records) < 2 {
		return nil, domain.ImportValidationError{Rows: []domain.InvalidRow{{Line: 1, Message: "upload carries no data rows"}}}
	}

	var rows []EntityRow
	var invalid []domain.InvalidRow
	for i, record := range records[1:] {
		line := i + 2
		row, rowErrs := parseEntityRecord(line, record)
		if len(rowErrs) > 0 {
			invalid = append(invalid, rowErrs...)
			continue
		}
		rows = append(rows, row)
	}
	if len(invalid) > 0 {
		return nil, domain.ImportValidationError{Rows: invalid}
	}
	return rows, nil
}

func parseEntityRecord(line int, record []string) (EntityRow, []domain.InvalidRow) {
	var invalid []domain.InvalidRow
	bad := func(column, message string) {
		invalid = append(invalid, domain.InvalidRow{Line: line, Column: column, Message: message})
	}
	get := func(idx int) string {
		if idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	kind := domain.EntityKind(strings.ToLower(get(colEntityType)))
	minLen := 0
	switch kind {
	case domain.KindGene:
		minLen = geneLineLength
	case domain.KindSTR:
		minLen = strLineLength
	case domain.KindRegion:
		minLen = regionLineLength
	default:
		bad("entity_type", fmt.Sprintf("unknown entity type %q", get(colEntityType)))
		return EntityRow{}, invalid
	}
	if len(record) < minLen {
		bad("", fmt.Sprintf("%s rows need %d columns, got %d", kind, minLen, len(record)))
		return EntityRow{}, invalid
	}

	name := get(colEntityName)
	if !domain.IsValidEntityName(name) {
		bad("entity_name", fmt.Sprintf("invalid entity name %q", name))
	}
	panel := get(colLevel4)
	if panel == "" {
		bad("level4", "panel name required")
	}

	sources := splitList(get(colSources))
	for _, src := range sources {
		if !domain.IsKnownSource(src) {
			bad("sources", fmt.Sprintf("unknown source %q", src))
		}
	}
	moi := get(colMOI)
	if moi != "" && !domain.IsValidMOI(moi) {
		bad("moi", fmt.Sprintf("unrecognised mode of inheritance %q", moi))
	}
	if moi == "Unknown" && containsString(sources, domain.ExpertReviewGreen) {
		bad("moi", "Expert Review Green entries need a concrete mode of inheritance")
	}
	flagged := false
	if raw := get(colFlagged); raw != "" {
		parsed, err := parseBool(raw)
		if err != nil {
			bad("flagged", err.Error())
		}
		flagged = parsed
	}

	input := core.EntityInput{
		Kind:                kind,
		Name:                name,
		GeneSymbol:          get(colGeneSymbol),
		ModeOfInheritance:   moi,
		ModeOfPathogenicity: get(colModeOfPathogenicity),
		Publications:        splitList(get(colPublications)),
		Phenotypes:          splitList(get(colPhenotypes)),
		Sources:             sources,
		Comment:             get(colDescription),
		Flagged:             flagged,
	}

	switch kind {
	case domain.KindSTR:
		str := &domain.STRFields{
			Chromosome:       get(colChromosome),
			RepeatedSequence: get(colRepeatedSequence),
		}
		if !domain.IsValidChromosome(str.Chromosome) {
			bad("chromosome", fmt.Sprintf("invalid chromosome %q", str.Chromosome))
		}
		if !domain.IsValidRepeatedSequence(str.RepeatedSequence) {
			bad("repeated_sequence", fmt.Sprintf("invalid repeated sequence %q", str.RepeatedSequence))
		}
		str.Position37 = parseOptionalRange(get(colPos37Start), get(colPos37End), "pos37", bad)
		if r := parseRange(get(colPos38Start), get(colPos38End), "pos38", bad); r != nil {
			str.Position38 = *r
		}
		str.NormalRepeats = parseInt(get(colNormalRepeats), "normal_repeats", bad)
		str.PathogenicRepeats = parseInt(get(colPathogenicRepeats), "pathogenic_repeats", bad)
		if str.PathogenicRepeats < str.NormalRepeats {
			bad("pathogenic_repeats", "pathogenic repeat count below normal repeat count")
		}
		input.STR = str
	case domain.KindRegion:
		region := &domain.RegionFields{
			Chromosome:              get(colChromosome),
			TypeOfVariants:          get(colTypeOfVariants),
			HaploinsufficiencyScore: get(colHaploinsufficiency),
			TriplosensitivityScore:  get(colTriplosensitivity),
			VerboseName:             get(colVerboseName),
		}
		if !domain.IsValidChromosome(region.Chromosome) {
			bad("chromosome", fmt.Sprintf("invalid chromosome %q", region.Chromosome))
		}
		if get(colPos37Start) != "" || get(colPos37End) != "" {
			bad("pos37_start", "region rows must leave the GRCh37 position blank")
		}
		if r := parseRange(get(colPos38Start), get(colPos38End), "pos38", bad); r != nil {
			if r.Start >= r.End {
				bad("pos38_start", "region start must precede end")
			}
			region.Position38 = *r
		}
		region.RequiredOverlapPercentage = parseInt(get(colRequiredOverlap), "required_overlap_percentage", bad)
		switch region.TypeOfVariants {
		case domain.VariantCNVLoss:
			if region.HaploinsufficiencyScore == "" {
				bad("haploinsufficiency_score", "required for loss regions")
			}
		case domain.VariantCNVGain:
			if region.TriplosensitivityScore == "" {
				bad("triplosensitivity_score", "required for gain regions")
			}
		case domain.VariantSmall:
		default:
			bad("type_of_variants", fmt.Sprintf("unknown variant type %q", region.TypeOfVariants))
		}
		input.Region = region
	}

	if len(invalid) > 0 {
		return EntityRow{}, invalid
	}
	return EntityRow{Line: line, Panel: panel, Input: input}, nil
}

// ValidateEntityRows checks the parsed rows against current store state:
// panels must exist and be leaves, gene symbols must be active, gene rows
// must name their own symbol, and STR/region rows must agree with the
// coordinates already on the panel.
func ValidateEntityRows(view domain.TransactionView, rows []EntityRow) []domain.InvalidRow {
	var invalid []domain.InvalidRow
	for _, row := range rows {
		bad := func(column, message string) {
			invalid = append(invalid, domain.InvalidRow{Line: row.Line, Column: column, Message: message})
		}
		panel, ok := view.FindPanelByName(row.Panel)
		if !ok {
			bad("level4", fmt.Sprintf("panel %q not found", row.Panel))
			continue
		}
		active, ok := view.ActiveSnapshot(panel.ID)
		if !ok {
			bad("level4", fmt.Sprintf("panel %q has no active version", row.Panel))
			continue
		}
		if active.IsSuperPanel() {
			bad("level4", fmt.Sprintf("panel %q is a super-panel", row.Panel))
			continue
		}

		symbol := row.Input.GeneSymbol
		if row.Input.Kind == domain.KindGene {
			if symbol == "" {
				symbol = row.Input.Name
			}
			if symbol != row.Input.Name {
				bad("gene_symbol", fmt.Sprintf("gene rows must name their own symbol, got %q for %q", symbol, row.Input.Name))
			}
		}
		if symbol != "" {
			ref, ok := view.FindGeneReference(symbol)
			if row.Input.Kind == domain.KindGene {
				if !ok {
					bad("gene_symbol", fmt.Sprintf("gene %q not in the reference catalog", symbol))
				} else if !ref.Active {
					bad("gene_symbol", fmt.Sprintf("gene %q is inactive in the reference catalog", symbol))
				}
			}
		}

		switch row.Input.Kind {
		case domain.KindSTR:
			if existing, ok := active.FindEntry(domain.KindSTR, row.Input.Name); ok && existing.STR != nil {
				if !strFieldsMatch(*existing.STR, *row.Input.STR) {
					bad("entity_name", fmt.Sprintf("STR %q does not match the coordinates already on %q", row.Input.Name, row.Panel))
				}
			}
		case domain.KindRegion:
			if existing, ok := active.FindEntry(domain.KindRegion, row.Input.Name); ok && existing.Region != nil {
				if !regionFieldsMatch(*existing.Region, *row.Input.Region) {
					bad("entity_name", fmt.Sprintf("region %q does not match the record already on %q", row.Input.Name, row.Panel))
				}
			}
		}
	}
	return invalid
}

func strFieldsMatch(a, b domain.STRFields) bool {
	if a.Chromosome != b.Chromosome ||
		a.Position38 != b.Position38 ||
		a.RepeatedSequence != b.RepeatedSequence ||
		a.NormalRepeats != b.NormalRepeats ||
		a.PathogenicRepeats != b.PathogenicRepeats {
		return false
	}
	return rangePtrEqual(a.Position37, b.Position37)
}

func regionFieldsMatch(a, b domain.RegionFields) bool {
	return a.Chromosome == b.Chromosome &&
		a.Position38 == b.Position38 &&
		a.TypeOfVariants == b.TypeOfVariants &&
		a.VerboseName == b.VerboseName &&
		a.RequiredOverlapPercentage == b.RequiredOverlapPercentage &&
		scoreMatches(a, b)
}

func scoreMatches(a, b domain.RegionFields) bool {
	switch a.TypeOfVariants {
	case domain.VariantCNVLoss:
		return a.HaploinsufficiencyScore == b.HaploinsufficiencyScore
	case domain.VariantCNVGain:
		return a.TriplosensitivityScore == b.TriplosensitivityScore
	}
	return true
}

func rangePtrEqual(a, b *domain.Range) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// GroupEntityRows resolves panel names and groups the rows into per-panel
// batches, keeping first-seen panel order.
func GroupEntityRows(view domain.TransactionView, rows []EntityRow) ([]core.EntityBatch, error) {
	index := map[string]int{}
	var batches []core.EntityBatch
	for _, row := range rows {
		panel, ok := view.FindPanelByName(row.Panel)
		if !ok {
			return nil, domain.ErrNotFound{Entity: "panel", ID: row.Panel}
		}
		i, seen := index[panel.ID]
		if !seen {
			i = len(batches)
			index[panel.ID] = i
			batches = append(batches, core.EntityBatch{PanelID: panel.ID})
		}
		batches[i].Entities = append(batches[i].Entities, row.Input)
	}
	return batches, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func parseInt(s, column string, bad func(column, message string)) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		bad(column, fmt.Sprintf("invalid number %q", s))
		return 0
	}
	return v
}

func parseRange(start, end, column string, bad func(column, message string)) *domain.Range {
	if start == "" || end == "" {
		bad(column+"_start", "position required")
		return nil
	}
	return &domain.Range{
		Start: parseInt(start, column+"_start", bad),
		End:   parseInt(end, column+"_end", bad),
	}
}

func parseOptionalRange(start, end, column string, bad func(column, message string)) *domain.Range {
	if start == "" && end == "" {
		return nil
	}
	return parseRange(start, end, column, bad)
}
