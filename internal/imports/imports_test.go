package imports

import (
	"context"
	"errors"
	"strings"
	"testing"

	"panelcore/internal/core"
	"panelcore/internal/infra/persistence/memory"
	"panelcore/pkg/domain"
)

var curator = domain.User{Name: "curator", Type: domain.ReviewerGEL}

func entityHeader() string {
	cols := make([]string, 36)
	cols[0] = "entity_name"
	cols[1] = "entity_type"
	return strings.Join(cols, "\t")
}

func geneRow(name, panel, moi, flagged string) string {
	cols := make([]string, 15)
	cols[colEntityName] = name
	cols[colEntityType] = "gene"
	cols[colGeneSymbol] = name
	cols[colSources] = "UKGTN"
	cols[colLevel4] = panel
	cols[colMOI] = moi
	cols[colPhenotypes] = "hearing loss"
	cols[colPublications] = "PMID:1;PMID:2"
	cols[colDescription] = "seeded by upload"
	cols[colFlagged] = flagged
	return strings.Join(cols, "\t")
}

func strRow(name, panel string) string {
	cols := make([]string, 31)
	cols[colEntityName] = name
	cols[colEntityType] = "str"
	cols[colGeneSymbol] = "BRCA1"
	cols[colLevel4] = panel
	cols[colChromosome] = "X"
	cols[colPos38Start] = "67545316"
	cols[colPos38End] = "67545419"
	cols[colRepeatedSequence] = "CAG"
	cols[colNormalRepeats] = "34"
	cols[colPathogenicRepeats] = "38"
	return strings.Join(cols, "\t")
}

func regionRow(name, panel string) string {
	cols := make([]string, 35)
	cols[colEntityName] = name
	cols[colEntityType] = "region"
	cols[colLevel4] = panel
	cols[colChromosome] = "13"
	cols[colPos38Start] = "100000"
	cols[colPos38End] = "200000"
	cols[colHaploinsufficiency] = "3"
	cols[colRequiredOverlap] = "60"
	cols[colTypeOfVariants] = domain.VariantCNVLoss
	return strings.Join(cols, "\t")
}

func newTestImporter(t *testing.T, panelName string) (*Importer, *core.Service, core.Panel) {
	t.Helper()
	store := memory.NewStore(core.DefaultRulesEngine())
	svc := core.NewService(store, core.Options{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		now := tx.Now()
		_, err := tx.CreateGeneReference(domain.GeneReference{
			Base:       domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now},
			GeneSymbol: "BRCA1",
			EnsemblGenes: map[string]map[string]domain.EnsemblGene{
				"GRch38": {"90": {EnsemblID: "ENSG00000012048"}},
			},
			Active: true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	panel, err := svc.CreatePanel(context.Background(), core.CreatePanelInput{Name: panelName}, curator)
	if err != nil {
		t.Fatalf("create panel: %v", err)
	}
	return NewImporter(svc), svc, panel
}

func TestParseEntityTSVReadsAllKinds(t *testing.T) {
	upload := strings.Join([]string{
		entityHeader(),
		geneRow("BRCA1", "Hearing loss", domain.ModesOfInheritance[4], "false"),
		strRow("AR_CAG", "Hearing loss"),
		regionRow("ISCA-37432-Loss", "Hearing loss"),
	}, "\n")

	rows, err := ParseEntityTSV(strings.NewReader(upload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Input.Kind != domain.KindGene || len(rows[0].Input.Publications) != 2 {
		t.Fatalf("unexpected gene row %+v", rows[0].Input)
	}
	if rows[1].Input.STR == nil || rows[1].Input.STR.PathogenicRepeats != 38 {
		t.Fatalf("unexpected STR row %+v", rows[1].Input)
	}
	if rows[2].Input.Region == nil || rows[2].Input.Region.TypeOfVariants != domain.VariantCNVLoss {
		t.Fatalf("unexpected region row %+v", rows[2].Input)
	}
}

func TestParseEntityTSVCollectsDiagnostics(t *testing.T) {
	badName := geneRow("not a name!", "Hearing loss", "", "false")
	badBool := geneRow("BRCA1", "Hearing loss", "", "maybe")
	badMOI := geneRow("BRCA2", "Hearing loss", "not-a-moi", "false")
	upload := strings.Join([]string{entityHeader(), badName, badBool, badMOI}, "\n")

	_, err := ParseEntityTSV(strings.NewReader(upload))
	var invalid domain.ImportValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(invalid.Rows) != 3 {
		t.Fatalf("expected 3 diagnostics, got %+v", invalid.Rows)
	}
	if invalid.Rows[0].Line != 2 || invalid.Rows[1].Line != 3 || invalid.Rows[2].Line != 4 {
		t.Fatalf("line numbers wrong: %+v", invalid.Rows)
	}
}

func TestParseEntityTSVRejectsGreenExpertReviewWithUnknownMOI(t *testing.T) {
	cols := strings.Split(geneRow("BRCA1", "Hearing loss", "Unknown", "false"), "\t")
	cols[colSources] = domain.ExpertReviewGreen
	upload := strings.Join([]string{entityHeader(), strings.Join(cols, "\t")}, "\n")

	_, err := ParseEntityTSV(strings.NewReader(upload))
	var invalid domain.ImportValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if invalid.Rows[0].Column != "moi" {
		t.Fatalf("unexpected diagnostic %+v", invalid.Rows)
	}
}

func TestImportEntitiesAppliesUpload(t *testing.T) {
	importer, svc, panel := newTestImporter(t, "Hearing loss")
	upload := strings.Join([]string{
		entityHeader(),
		geneRow("BRCA1", "Hearing loss", domain.ModesOfInheritance[4], "false"),
	}, "\n")

	job, err := importer.ImportEntities(context.Background(), strings.NewReader(upload), curator)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if job.Status != StatusSucceeded {
		t.Fatalf("unexpected job status %s", job.Status)
	}
	active, err := svc.ActiveSnapshot(context.Background(), panel.ID)
	if err != nil {
		t.Fatalf("active snapshot: %v", err)
	}
	if active.Version != (domain.Version{Major: 0, Minor: 1}) {
		t.Fatalf("upload must bump once, got %s", active.Version)
	}
	entry, ok := active.FindEntry(domain.KindGene, "BRCA1")
	if !ok {
		t.Fatalf("entry missing after upload")
	}
	if entry.ModeOfInheritance != domain.ModesOfInheritance[4] {
		t.Fatalf("unexpected MOI %q", entry.ModeOfInheritance)
	}
}

func TestImportEntitiesRejectsUnknownPanel(t *testing.T) {
	importer, svc, panel := newTestImporter(t, "Hearing loss")
	upload := strings.Join([]string{
		entityHeader(),
		geneRow("BRCA1", "No such panel", "", "false"),
	}, "\n")

	_, err := importer.ImportEntities(context.Background(), strings.NewReader(upload), curator)
	var invalid domain.ImportValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	active, err := svc.ActiveSnapshot(context.Background(), panel.ID)
	if err != nil {
		t.Fatalf("active snapshot: %v", err)
	}
	if active.Version != (domain.Version{}) {
		t.Fatalf("rejected upload must not touch the panel")
	}
}

func TestImportEntitiesRejectsGeneSymbolMismatch(t *testing.T) {
	importer, _, _ := newTestImporter(t, "Hearing loss")
	cols := strings.Split(geneRow("BRCA1", "Hearing loss", "", "false"), "\t")
	cols[colGeneSymbol] = "BRCA2"
	upload := strings.Join([]string{entityHeader(), strings.Join(cols, "\t")}, "\n")

	_, err := importer.ImportEntities(context.Background(), strings.NewReader(upload), curator)
	var invalid domain.ImportValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if invalid.Rows[0].Column != "gene_symbol" {
		t.Fatalf("unexpected diagnostic %+v", invalid.Rows)
	}
}

func reviewRow(symbol, panel, rating, username string) string {
	cols := make([]string, reviewLineLength)
	cols[revColGeneSymbol] = symbol
	cols[revColLevel4] = panel
	cols[revColPhenotypes] = "hearing loss"
	cols[revColPublications] = "PMID:9"
	cols[revColRating] = rating
	cols[revColCurrentDiagnostic] = "true"
	cols[revColComment] = "seen in clinic"
	cols[revColUsername] = username
	return strings.Join(cols, "\t")
}

func TestImportReviewsMergesEvaluations(t *testing.T) {
	importer, svc, panel := newTestImporter(t, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, core.EntityInput{
		Kind: domain.KindGene, Name: "BRCA1",
	}, curator); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	upload := strings.Join([]string{
		strings.Repeat("h\t", reviewLineLength-1) + "h",
		reviewRow("BRCA1", "Hearing loss", domain.RatingGreenLabel, "clinician1"),
		reviewRow("BRCA1", "Hearing loss", "RED", "clinician2"),
	}, "\n")

	job, err := importer.ImportReviews(context.Background(), strings.NewReader(upload), curator)
	if err != nil {
		t.Fatalf("import reviews: %v", err)
	}
	if job.Status != StatusSucceeded {
		t.Fatalf("unexpected job status %s", job.Status)
	}
	active, err := svc.ActiveSnapshot(context.Background(), panel.ID)
	if err != nil {
		t.Fatalf("active snapshot: %v", err)
	}
	entry, _ := active.FindEntry(domain.KindGene, "BRCA1")
	if len(entry.Evaluations) != 2 {
		t.Fatalf("expected 2 evaluations, got %+v", entry.Evaluations)
	}
	if ev, ok := entry.EvaluationBy("clinician1"); !ok || ev.Rating != domain.RatingGreen {
		t.Fatalf("long-form rating not canonicalised: %+v", ev)
	}
}

func TestImportReviewsRejectsMissingEntry(t *testing.T) {
	importer, _, _ := newTestImporter(t, "Hearing loss")
	upload := strings.Join([]string{
		strings.Repeat("h\t", reviewLineLength-1) + "h",
		reviewRow("BRCA1", "Hearing loss", "GREEN", "clinician1"),
	}, "\n")

	_, err := importer.ImportReviews(context.Background(), strings.NewReader(upload), curator)
	var invalid domain.ImportValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseGeneCollection(t *testing.T) {
	payload := `{
		"insert": [{"gene_symbol": "NEW1", "ensembl_genes": {"GRch38": {"90": {"ensembl_id": "ENSG1"}}}}],
		"delete": ["OLD1"],
		"update_symbol": [[{"gene_symbol": "BRCA1A", "ensembl_genes": {"GRch38": {"90": {"ensembl_id": "ENSG2"}}}}, "BRCA1"]]
	}`
	update, err := ParseGeneCollection(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(update.Insert) != 1 || update.Insert[0].GeneSymbol != "NEW1" {
		t.Fatalf("unexpected insert %+v", update.Insert)
	}
	if len(update.Delete) != 1 || update.Delete[0] != "OLD1" {
		t.Fatalf("unexpected delete %+v", update.Delete)
	}
	if len(update.UpdateSymbol) != 1 || update.UpdateSymbol[0].OldSymbol != "BRCA1" {
		t.Fatalf("unexpected rename %+v", update.UpdateSymbol)
	}
}

func TestParseGeneCollectionRejectsBadTuple(t *testing.T) {
	payload := `{"update_symbol": [["just-one"]]}`
	if _, err := ParseGeneCollection(strings.NewReader(payload)); err == nil {
		t.Fatalf("expected tuple error")
	}
}
