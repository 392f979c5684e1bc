package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"panelcore/internal/infra/persistence/memory"
	"panelcore/pkg/domain"
)

var (
	curator  = domain.User{Name: "curator", Type: domain.ReviewerGEL}
	reviewer = domain.User{Name: "reviewer", Type: domain.ReviewerVerified}
)

func testGene(symbol string) domain.GeneReference {
	return domain.GeneReference{
		GeneSymbol: symbol,
		GeneName:   symbol + " gene",
		HGNCID:     "HGNC:1100",
		EnsemblGenes: map[string]map[string]domain.EnsemblGene{
			"GRch38": {"90": {EnsemblID: "ENSG00000012048", Location: "17:43044295-43125483"}},
		},
		Active: true,
	}
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(DefaultRulesEngine())
	svc := NewService(store, Options{})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, symbol := range []string{"BRCA1", "BRCA2", "POLG"} {
			gene := testGene(symbol)
			now := tx.Now()
			gene.Base = domain.Base{ID: tx.NewID(), CreatedAt: now, UpdatedAt: now}
			if _, err := tx.CreateGeneReference(gene); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed gene catalog: %v", err)
	}
	return svc, store
}

func mustCreatePanel(t *testing.T, svc *Service, name string, children ...string) Panel {
	t.Helper()
	panel, err := svc.CreatePanel(context.Background(), CreatePanelInput{Name: name, ChildPanels: children}, curator)
	if err != nil {
		t.Fatalf("create panel %s: %v", name, err)
	}
	return panel
}

func mustActive(t *testing.T, svc *Service, panelID string) PanelSnapshot {
	t.Helper()
	snapshot, err := svc.ActiveSnapshot(context.Background(), panelID)
	if err != nil {
		t.Fatalf("active snapshot: %v", err)
	}
	return snapshot
}

func TestCreatePanelStartsAtVersionZero(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Intellectual disability")

	if panel.Status != domain.StatusInternal {
		t.Fatalf("unexpected status %s", panel.Status)
	}
	active := mustActive(t, svc, panel.ID)
	if active.Version != (Version{}) {
		t.Fatalf("unexpected version %s", active.Version)
	}
	if active.Title != "Intellectual disability" {
		t.Fatalf("unexpected title %q", active.Title)
	}
}

func TestCuratorAddBumpsMinorVersion(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")

	entry, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind:              domain.KindGene,
		Name:              "BRCA1",
		ModeOfInheritance: domain.ModesOfInheritance[0],
		Sources:           []string{"UKGTN"},
		Rating:            domain.RatingGreen,
	}, curator)
	if err != nil {
		t.Fatalf("add entity: %v", err)
	}
	if entry.Flagged {
		t.Fatalf("curator addition must not be flagged")
	}
	if entry.SavedGELStatus != domain.StatusGreen {
		t.Fatalf("unexpected status %d", entry.SavedGELStatus)
	}
	if !entry.HasEvidence(domain.ExpertReviewGreen) {
		t.Fatalf("expert review evidence missing: %+v", entry.Evidence)
	}

	active := mustActive(t, svc, panel.ID)
	if active.Version != (Version{Major: 0, Minor: 1}) {
		t.Fatalf("unexpected version %s", active.Version)
	}
	if active.Stats.NumberOfGenes != 1 || active.Stats.NumberOfGreen != 1 {
		t.Fatalf("unexpected stats %+v", active.Stats)
	}
	versions := svc.PanelVersions(context.Background(), panel.ID)
	if len(versions) != 1 || versions[0].Version != (Version{}) {
		t.Fatalf("version 0.0 not frozen: %+v", versions)
	}
}

func TestExternalAddIsFlaggedWithoutBump(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")

	entry, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind:   domain.KindGene,
		Name:   "BRCA2",
		Rating: domain.RatingGreen,
	}, reviewer)
	if err != nil {
		t.Fatalf("add entity: %v", err)
	}
	if !entry.Flagged {
		t.Fatalf("external addition must be flagged")
	}
	if entry.SavedGELStatus != domain.StatusNoList {
		t.Fatalf("unexpected status %d", entry.SavedGELStatus)
	}
	active := mustActive(t, svc, panel.ID)
	if active.Version != (Version{}) {
		t.Fatalf("external addition must not bump the version, got %s", active.Version)
	}
	if len(svc.PanelVersions(context.Background(), panel.ID)) != 0 {
		t.Fatalf("no version should be frozen")
	}
}

func TestAddEntityRejectsUnknownGene(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")

	_, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene,
		Name: "NOSUCHGENE",
	}, curator)
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestExpertReviewOverridesStatus(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind:    domain.KindGene,
		Name:    "BRCA1",
		Sources: []string{"UKGTN"},
		Rating:  domain.RatingGreen,
	}, curator); err != nil {
		t.Fatalf("add entity: %v", err)
	}

	entry, err := svc.ApplyExpertReview(context.Background(), panel.ID, domain.KindGene, "BRCA1", domain.RatingRed, false, curator)
	if err != nil {
		t.Fatalf("apply expert review: %v", err)
	}
	if entry.SavedGELStatus != domain.StatusRed {
		t.Fatalf("latest expert review must win, got %d", entry.SavedGELStatus)
	}

	entry, err = svc.ApplyExpertReview(context.Background(), panel.ID, domain.KindGene, "BRCA1", "", true, curator)
	if err != nil {
		t.Fatalf("apply removal: %v", err)
	}
	if entry.SavedGELStatus != domain.StatusNoList {
		t.Fatalf("removal must zero the status, got %d", entry.SavedGELStatus)
	}
	if _, err := svc.ApplyExpertReview(context.Background(), panel.ID, domain.KindGene, "BRCA1", domain.RatingGreen, false, reviewer); err == nil {
		t.Fatalf("external reviewers must not apply expert reviews")
	}
}

func TestUpdateEvaluationMergesRepeatSubmissions(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1", Sources: []string{"UKGTN"},
	}, curator); err != nil {
		t.Fatalf("add entity: %v", err)
	}

	if _, err := svc.UpdateEvaluation(context.Background(), panel.ID, domain.KindGene, "BRCA1", ReviewInput{
		Rating:       domain.RatingAmber,
		Publications: []string{"PMID:1"},
		Comment:      "first pass",
	}, reviewer); err != nil {
		t.Fatalf("first review: %v", err)
	}
	evaluation, err := svc.UpdateEvaluation(context.Background(), panel.ID, domain.KindGene, "BRCA1", ReviewInput{
		Rating:       domain.RatingGreen,
		Publications: []string{"PMID:1", "PMID:2"},
		Phenotypes:   []string{"hearing loss"},
	}, reviewer)
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if evaluation.Rating != domain.RatingGreen {
		t.Fatalf("rating must overwrite, got %s", evaluation.Rating)
	}
	if len(evaluation.Publications) != 2 {
		t.Fatalf("publications must union, got %v", evaluation.Publications)
	}
	if len(evaluation.Comments) != 1 {
		t.Fatalf("unexpected comments %v", evaluation.Comments)
	}

	active := mustActive(t, svc, panel.ID)
	entry, _ := active.FindEntry(domain.KindGene, "BRCA1")
	if len(entry.Evaluations) != 1 {
		t.Fatalf("one evaluation per user expected, got %d", len(entry.Evaluations))
	}
	if active.Stats.NumberOfEvaluations != 1 {
		t.Fatalf("unexpected stats %+v", active.Stats)
	}
}

func TestCopyToPanelsRewritesProvenance(t *testing.T) {
	svc, _ := newTestService(t)
	source := mustCreatePanel(t, svc, "Source panel")
	target := mustCreatePanel(t, svc, "Target panel")
	other := mustCreatePanel(t, svc, "Other panel")

	if _, err := svc.AddEntity(context.Background(), source.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1", Sources: []string{"UKGTN"},
	}, curator); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	if _, err := svc.UpdateEvaluation(context.Background(), source.ID, domain.KindGene, "BRCA1", ReviewInput{Rating: domain.RatingGreen}, reviewer); err != nil {
		t.Fatalf("seed review: %v", err)
	}
	// Pre-existing entry on one target triggers the skip path.
	if _, err := svc.AddEntity(context.Background(), other.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1",
	}, curator); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}

	sourceVersion := mustActive(t, svc, source.ID).Version
	result, err := svc.CopyToPanels(context.Background(), source.ID, domain.KindGene, []string{"BRCA1"}, []string{target.ID, other.ID}, curator)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if got := result.Copied[target.ID]; len(got) != 1 || got[0] != "BRCA1" {
		t.Fatalf("unexpected copied set %v", result.Copied)
	}
	if got := result.Skipped[other.ID]; len(got) != 1 || got[0] != "BRCA1" {
		t.Fatalf("conflicting entry must be skipped, got %v", result.Skipped)
	}

	targetActive := mustActive(t, svc, target.ID)
	if targetActive.Version != (Version{Major: 0, Minor: 1}) {
		t.Fatalf("target must bump once, got %s", targetActive.Version)
	}
	entry, ok := targetActive.FindEntry(domain.KindGene, "BRCA1")
	if !ok {
		t.Fatalf("copied entry missing")
	}
	want := "Imported from Source panel panel version " + sourceVersion.String()
	if entry.Evaluations[0].Version != want {
		t.Fatalf("unexpected provenance %q", entry.Evaluations[0].Version)
	}
	if !strings.Contains(entry.Evaluations[0].OriginalPanel, "Source panel v"+sourceVersion.String()) {
		t.Fatalf("unexpected original panel %q", entry.Evaluations[0].OriginalPanel)
	}
}

func TestSuperPanelAggregationAndCascade(t *testing.T) {
	svc, _ := newTestService(t)
	childA := mustCreatePanel(t, svc, "Child A")
	childB := mustCreatePanel(t, svc, "Child B")
	if _, err := svc.AddEntity(context.Background(), childA.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1", Rating: domain.RatingGreen, Sources: []string{"UKGTN"},
	}, curator); err != nil {
		t.Fatalf("seed child A: %v", err)
	}
	super := mustCreatePanel(t, svc, "Super panel", childA.ID, childB.ID)

	superActive := mustActive(t, svc, super.ID)
	if !superActive.IsSuperPanel() {
		t.Fatalf("expected a super-panel snapshot")
	}
	if superActive.Stats.NumberOfGenes != 1 {
		t.Fatalf("unexpected aggregate stats %+v", superActive.Stats)
	}

	if _, err := svc.AddEntity(context.Background(), childB.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA2", Rating: domain.RatingAmber, Sources: []string{"NHS GMS"},
	}, curator); err != nil {
		t.Fatalf("add to child B: %v", err)
	}

	superActive = mustActive(t, svc, super.ID)
	if superActive.Version != (Version{Major: 0, Minor: 1}) {
		t.Fatalf("child change must bump the super panel, got %s", superActive.Version)
	}
	if superActive.Stats.NumberOfGenes != 2 || superActive.Stats.NumberOfAmber != 1 {
		t.Fatalf("aggregate stats not refreshed: %+v", superActive.Stats)
	}
}

func TestDeployReleaseSignsOffAndPromotes(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1", Sources: []string{"UKGTN"}, Rating: domain.RatingGreen,
	}, curator); err != nil {
		t.Fatalf("seed panel: %v", err)
	}

	release, err := svc.CreateRelease(context.Background(), "2026-08", "Promoted to version {{.version}}", []ReleasePanelInput{
		{PanelID: panel.ID, Promote: true},
	}, curator)
	if err != nil {
		t.Fatalf("create release: %v", err)
	}

	deployed, err := svc.DeployRelease(context.Background(), release.ID, curator)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if deployed.Deployment == nil || deployed.Deployment.End == nil {
		t.Fatalf("deployment window not closed: %+v", deployed.Deployment)
	}
	rp := deployed.Panels[0]
	if rp.Deployment == nil || rp.Deployment.BeforeID == rp.Deployment.AfterID {
		t.Fatalf("per-panel deployment not recorded: %+v", rp.Deployment)
	}

	got, err := svc.GetPanel(context.Background(), panel.ID)
	if err != nil {
		t.Fatalf("get panel: %v", err)
	}
	if got.Status != domain.StatusPublic {
		t.Fatalf("panel must be promoted, got %s", got.Status)
	}
	if got.SignedOffID == nil {
		t.Fatalf("signed-off pointer missing")
	}
	active := mustActive(t, svc, panel.ID)
	if active.Version != (Version{Major: 1, Minor: 0}) {
		t.Fatalf("unexpected version %s", active.Version)
	}
	if active.VersionComment != "Promoted to version 1.0" {
		t.Fatalf("unexpected version comment %q", active.VersionComment)
	}
	hist, err := svc.PanelVersion(context.Background(), panel.ID, active.Version)
	if err != nil {
		t.Fatalf("signed-off version: %v", err)
	}
	if hist.SignedOffDate == nil {
		t.Fatalf("sign-off date missing")
	}

	_, err = svc.DeployRelease(context.Background(), release.ID, curator)
	var already domain.ErrAlreadyDeployed
	if !errors.As(err, &already) {
		t.Fatalf("second deploy must report already deployed, got %v", err)
	}
}

func TestDeployReleaseRetriesAfterStaleStart(t *testing.T) {
	svc, store := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	release, err := svc.CreateRelease(context.Background(), "2026-08", "", []ReleasePanelInput{{PanelID: panel.ID}}, curator)
	if err != nil {
		t.Fatalf("create release: %v", err)
	}

	// Simulate a deploy that started and never finished.
	stale := time.Now().UTC().Add(-domain.DeployRetryAfter - time.Minute)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRelease(release.ID, func(r *Release) error {
			r.Deployment = &domain.ReleaseDeployment{Start: &stale}
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("mark stale: %v", err)
	}

	deployed, err := svc.DeployRelease(context.Background(), release.ID, curator)
	if err != nil {
		t.Fatalf("stale retry must succeed: %v", err)
	}
	if deployed.Deployment.End == nil {
		t.Fatalf("retry did not finish the deployment")
	}
}

func TestDeployReleaseBlocksFreshInFlightStart(t *testing.T) {
	svc, store := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	release, err := svc.CreateRelease(context.Background(), "2026-08", "", []ReleasePanelInput{{PanelID: panel.ID}}, curator)
	if err != nil {
		t.Fatalf("create release: %v", err)
	}
	recent := time.Now().UTC().Add(-time.Minute)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRelease(release.ID, func(r *Release) error {
			r.Deployment = &domain.ReleaseDeployment{Start: &recent}
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("mark in flight: %v", err)
	}

	_, err = svc.DeployRelease(context.Background(), release.ID, curator)
	var already domain.ErrAlreadyDeployed
	if !errors.As(err, &already) {
		t.Fatalf("in-flight deploy must block retries, got %v", err)
	}
}

func TestUpdateGeneCollectionRenameCascades(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1", Sources: []string{"UKGTN"},
	}, curator); err != nil {
		t.Fatalf("seed panel: %v", err)
	}
	before := mustActive(t, svc, panel.ID).Version

	renamed := testGene("BRCA1A")
	result, err := svc.UpdateGeneCollection(context.Background(), GeneCollectionUpdate{
		UpdateSymbol: []SymbolChange{{Gene: renamed, OldSymbol: "BRCA1"}},
	}, curator)
	if err != nil {
		t.Fatalf("update collection: %v", err)
	}
	if result.Renamed != 1 || len(result.BumpedPanels) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	active := mustActive(t, svc, panel.ID)
	if !before.Less(active.Version) {
		t.Fatalf("rename must bump the panel, got %s", active.Version)
	}
	entry, ok := active.FindEntry(domain.KindGene, "BRCA1A")
	if !ok {
		t.Fatalf("entry not renamed: %+v", active.Entries)
	}
	if entry.Gene == nil || entry.Gene.GeneSymbol != "BRCA1A" {
		t.Fatalf("denormalised data not refreshed: %+v", entry.Gene)
	}
	if _, err := svc.GetGene(context.Background(), "BRCA1A"); err != nil {
		t.Fatalf("catalog not rekeyed: %v", err)
	}
}

func TestUpdateGeneCollectionDeactivatesInsteadOfDeleting(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.UpdateGeneCollection(context.Background(), GeneCollectionUpdate{
		Delete: []string{"POLG"},
	}, curator); err != nil {
		t.Fatalf("update collection: %v", err)
	}
	gene, err := svc.GetGene(context.Background(), "POLG")
	if err != nil {
		t.Fatalf("deleted gene must stay addressable: %v", err)
	}
	if gene.Active {
		t.Fatalf("gene must be deactivated")
	}
}

func TestImportEntitiesBumpsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")

	snapshot, err := svc.ImportEntities(context.Background(), panel.ID, []EntityInput{
		{Kind: domain.KindGene, Name: "BRCA1", Rating: domain.RatingGreen, Sources: []string{"UKGTN"}},
		{Kind: domain.KindGene, Name: "BRCA2", Rating: domain.RatingAmber},
		{Kind: domain.KindSTR, Name: "AR_CAG", GeneSymbol: "POLG", STR: &domain.STRFields{
			Chromosome:        "X",
			Position38:        domain.Range{Start: 67545316, End: 67545419},
			RepeatedSequence:  "CAG",
			NormalRepeats:     34,
			PathogenicRepeats: 38,
		}},
	}, curator)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if snapshot.Version != (Version{Major: 0, Minor: 1}) {
		t.Fatalf("batch import must bump once, got %s", snapshot.Version)
	}
	if snapshot.Stats.NumberOfEntities != 3 || snapshot.Stats.NumberOfSTRs != 1 {
		t.Fatalf("unexpected stats %+v", snapshot.Stats)
	}
}

func TestImportReviewsAppliesOnBehalfOfReviewers(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1",
	}, curator); err != nil {
		t.Fatalf("seed panel: %v", err)
	}
	before := mustActive(t, svc, panel.ID).Version

	snapshot, err := svc.ImportReviews(context.Background(), panel.ID, []ReviewImport{
		{Kind: domain.KindGene, Name: "BRCA1", Reviewer: reviewer, Review: ReviewInput{Rating: domain.RatingGreen}},
		{Kind: domain.KindGene, Name: "BRCA1", Reviewer: domain.User{Name: "second", Type: domain.ReviewerExternal}, Review: ReviewInput{Rating: domain.RatingRed}},
	}, curator)
	if err != nil {
		t.Fatalf("import reviews: %v", err)
	}
	if snapshot.Version != before {
		t.Fatalf("review import must not bump the version")
	}
	entry, _ := snapshot.FindEntry(domain.KindGene, "BRCA1")
	if len(entry.Evaluations) != 2 {
		t.Fatalf("unexpected evaluations %+v", entry.Evaluations)
	}
}

func TestCommitRulesBlockInvalidEntries(t *testing.T) {
	svc, store := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	active := mustActive(t, svc, panel.ID)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdatePanelSnapshot(active.ID, func(snap *PanelSnapshot) error {
			snap.Entries = append(snap.Entries, EntityRecord{
				Base: domain.Base{ID: tx.NewID()},
				Kind: domain.KindGene,
				Name: "not a valid name!",
			})
			return nil
		})
		return err
	})
	var blocked domain.RuleViolationError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !blocked.Result.HasBlocking() {
		t.Fatalf("expected blocking violations: %+v", blocked.Result)
	}
}

func TestDeleteEntityBumpsAndKeepsHistory(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1",
	}, curator); err != nil {
		t.Fatalf("seed panel: %v", err)
	}

	if err := svc.DeleteEntity(context.Background(), panel.ID, domain.KindGene, "BRCA1", curator); err != nil {
		t.Fatalf("delete: %v", err)
	}
	active := mustActive(t, svc, panel.ID)
	if active.Version != (Version{Major: 0, Minor: 2}) {
		t.Fatalf("unexpected version %s", active.Version)
	}
	if _, ok := active.FindEntry(domain.KindGene, "BRCA1"); ok {
		t.Fatalf("entry still on the active version")
	}
	// The 0.1 freeze still carries the entry.
	hist, err := svc.PanelVersion(context.Background(), panel.ID, Version{Major: 0, Minor: 1})
	if err != nil {
		t.Fatalf("frozen version: %v", err)
	}
	if !strings.Contains(string(hist.Data), `"BRCA1"`) {
		t.Fatalf("frozen payload lost the entry")
	}
}

func TestUpdateEntityTracksChangedFields(t *testing.T) {
	svc, _ := newTestService(t)
	panel := mustCreatePanel(t, svc, "Hearing loss")
	if _, err := svc.AddEntity(context.Background(), panel.ID, EntityInput{
		Kind: domain.KindGene, Name: "BRCA1",
	}, curator); err != nil {
		t.Fatalf("seed panel: %v", err)
	}

	moi := domain.ModesOfInheritance[4]
	penetrance := domain.PenetranceIncomplete
	entry, err := svc.UpdateEntity(context.Background(), panel.ID, domain.KindGene, "BRCA1", EntityUpdate{
		ModeOfInheritance: &moi,
		Penetrance:        &penetrance,
	}, curator)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if entry.ModeOfInheritance != moi || entry.Penetrance != penetrance {
		t.Fatalf("fields not applied: %+v", entry)
	}
	var issues []string
	for _, tr := range entry.Track {
		issues = append(issues, tr.Issues...)
	}
	joined := strings.Join(issues, ",")
	if !strings.Contains(joined, "mode_of_inheritance") || !strings.Contains(joined, "penetrance") {
		t.Fatalf("track records missing: %v", issues)
	}
	if mustActive(t, svc, panel.ID).Version != (Version{Major: 0, Minor: 2}) {
		t.Fatalf("update must bump the minor version")
	}
}
