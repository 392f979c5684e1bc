package imports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"panelcore/internal/core"
	"panelcore/pkg/domain"
)

// Review file column indices. The layout is fixed at 22 columns; columns not
// named here are carried for compatibility and ignored.
const (
	revColGeneSymbol          = 0
	revColLevel4              = 2
	revColMOI                 = 5
	revColPhenotypes          = 6
	revColPublications        = 10
	revColModeOfPathogenicity = 17
	revColRating              = 18
	revColCurrentDiagnostic   = 19
	revColComment             = 20
	revColUsername            = 21
)

const reviewLineLength = 22

// ReviewRow is one parsed review upload line: an evaluation to merge on
// behalf of the named reviewer.
type ReviewRow struct {
	Line   int
	Panel  string
	Review core.ReviewImport
}

// ParseReviewTSV reads a tab-separated review upload, collecting row
// diagnostics across the whole file.
func ParseReviewTSV(r io.Reader) ([]ReviewRow, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read review upload: %w", err)
	}
	if len(records) < 2 {
		return nil, domain.ImportValidationError{Rows: []domain.InvalidRow{{Line: 1, Message: "upload carries no data rows"}}}
	}

	var rows []ReviewRow
	var invalid []domain.InvalidRow
	for i, record := range records[1:] {
		line := i + 2
		row, rowErrs := parseReviewRecord(line, record)
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

func parseReviewRecord(line int, record []string) (ReviewRow, []domain.InvalidRow) {
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
	if len(record) < reviewLineLength {
		bad("", fmt.Sprintf("review rows need %d columns, got %d", reviewLineLength, len(record)))
		return ReviewRow{}, invalid
	}

	symbol := get(revColGeneSymbol)
	if !domain.IsValidEntityName(symbol) {
		bad("gene_symbol", fmt.Sprintf("invalid gene symbol %q", symbol))
	}
	panel := get(revColLevel4)
	if panel == "" {
		bad("level4", "panel name required")
	}
	username := get(revColUsername)
	if username == "" {
		bad("username", "reviewer username required")
	}
	moi := get(revColMOI)
	if moi != "" && !domain.IsValidMOI(moi) {
		bad("moi", fmt.Sprintf("unrecognised mode of inheritance %q", moi))
	}
	rating, ok := domain.ParseRating(get(revColRating))
	if !ok {
		bad("rating", fmt.Sprintf("unknown rating %q", get(revColRating)))
	}
	currentDiagnostic := false
	if raw := get(revColCurrentDiagnostic); raw != "" {
		parsed, err := parseBool(raw)
		if err != nil {
			bad("current_diagnostic", err.Error())
		}
		currentDiagnostic = parsed
	}
	if len(invalid) > 0 {
		return ReviewRow{}, invalid
	}

	return ReviewRow{
		Line:  line,
		Panel: panel,
		Review: core.ReviewImport{
			Kind:     domain.KindGene,
			Name:     symbol,
			Reviewer: domain.User{Name: username, Type: domain.ReviewerVerified},
			Review: core.ReviewInput{
				Rating:              rating,
				ModeOfInheritance:   moi,
				ModeOfPathogenicity: get(revColModeOfPathogenicity),
				Publications:        splitList(get(revColPublications)),
				Phenotypes:          splitList(get(revColPhenotypes)),
				CurrentDiagnostic:   currentDiagnostic,
				Comment:             get(revColComment),
			},
		},
	}, nil
}

// ValidateReviewRows checks that every row resolves to an existing entry on
// an existing panel.
func ValidateReviewRows(view domain.TransactionView, rows []ReviewRow) []domain.InvalidRow {
	var invalid []domain.InvalidRow
	for _, row := range rows {
		panel, ok := view.FindPanelByName(row.Panel)
		if !ok {
			invalid = append(invalid, domain.InvalidRow{Line: row.Line, Column: "level4", Message: fmt.Sprintf("panel %q not found", row.Panel)})
			continue
		}
		active, ok := view.ActiveSnapshot(panel.ID)
		if !ok {
			invalid = append(invalid, domain.InvalidRow{Line: row.Line, Column: "level4", Message: fmt.Sprintf("panel %q has no active version", row.Panel)})
			continue
		}
		if _, ok := active.FindEntry(row.Review.Kind, row.Review.Name); !ok {
			invalid = append(invalid, domain.InvalidRow{Line: row.Line, Column: "gene_symbol", Message: fmt.Sprintf("%q is not on panel %q", row.Review.Name, row.Panel)})
		}
	}
	return invalid
}

// GroupReviewRows resolves panel names and groups the rows into per-panel
// batches, keeping first-seen panel order.
func GroupReviewRows(view domain.TransactionView, rows []ReviewRow) ([]core.ReviewBatch, error) {
	index := map[string]int{}
	var batches []core.ReviewBatch
	for _, row := range rows {
		panel, ok := view.FindPanelByName(row.Panel)
		if !ok {
			return nil, domain.ErrNotFound{Entity: "panel", ID: row.Panel}
		}
		i, seen := index[panel.ID]
		if !seen {
			i = len(batches)
			index[panel.ID] = i
			batches = append(batches, core.ReviewBatch{PanelID: panel.ID})
		}
		batches[i].Reviews = append(batches[i].Reviews, row.Review)
	}
	return batches, nil
}
