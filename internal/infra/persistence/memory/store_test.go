package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"panelcore/pkg/domain"
)

func seedPanel(t *testing.T, store *Store, name string) (Panel, PanelSnapshot) {
	t.Helper()
	var panel Panel
	var snapshot PanelSnapshot
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		panel, err = tx.CreatePanel(Panel{Name: name, Status: domain.StatusInternal})
		if err != nil {
			return err
		}
		snapshot, err = tx.CreatePanelSnapshot(PanelSnapshot{PanelID: panel.ID, Title: name})
		if err != nil {
			return err
		}
		panel, err = tx.UpdatePanel(panel.ID, func(p *Panel) error {
			p.ActiveSnapshotID = snapshot.ID
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed panel: %v", err)
	}
	return panel, snapshot
}

func TestCreatePanelAndActiveSnapshot(t *testing.T) {
	store := NewStore(nil)
	panel, snapshot := seedPanel(t, store, "Intellectual disability")

	got, ok := store.GetPanel(panel.ID)
	if !ok || got.ActiveSnapshotID != snapshot.ID {
		t.Fatalf("unexpected committed panel: %+v", got)
	}
	if err := store.View(context.Background(), func(v TransactionView) error {
		active, ok := v.ActiveSnapshot(panel.ID)
		if !ok || active.ID != snapshot.ID {
			t.Fatalf("active snapshot not resolved: %+v", active)
		}
		if _, ok := v.FindPanelByName("Intellectual disability"); !ok {
			t.Fatalf("panel not found by name")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDuplicatePanelNameRejected(t *testing.T) {
	store := NewStore(nil)
	seedPanel(t, store, "Cardiac arrhythmias")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreatePanel(Panel{Name: "Cardiac arrhythmias"})
		return err
	})
	var conflict domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	panel, _ := seedPanel(t, store, "Retinal disorders")
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.UpdatePanel(panel.ID, func(p *Panel) error {
			p.Status = domain.StatusPublic
			return nil
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	got, _ := store.GetPanel(panel.ID)
	if got.Status != domain.StatusInternal {
		t.Fatalf("expected rollback, got status %s", got.Status)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(ctx context.Context, view domain.RuleView, changes []Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock}}}, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreatePanel(Panel{Name: "Blocked"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(store.ListPanels()) != 0 {
		t.Fatalf("expected no committed panels")
	}
}

func TestGeneReferenceRename(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateGeneReference(GeneReference{GeneSymbol: "OLD1", Active: true}); err != nil {
			return err
		}
		_, err := tx.UpdateGeneReference("OLD1", func(g *GeneReference) error {
			g.GeneSymbol = "NEW1"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := store.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindGeneReference("OLD1"); ok {
			t.Fatalf("old symbol still resolvable")
		}
		if _, ok := v.FindGeneReference("NEW1"); !ok {
			t.Fatalf("new symbol not resolvable")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestHistoricalSnapshotVersionUniqueness(t *testing.T) {
	store := NewStore(nil)
	panel, _ := seedPanel(t, store, "Hearing loss")
	freeze := func() error {
		_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.CreateHistoricalSnapshot(HistoricalSnapshot{
				PanelID: panel.ID,
				Version: domain.Version{Major: 1, Minor: 0},
				Data:    []byte(`{}`),
			})
			return err
		})
		return err
	}
	if err := freeze(); err != nil {
		t.Fatalf("first freeze: %v", err)
	}
	var conflict domain.ErrConflict
	if err := freeze(); !errors.As(err, &conflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestSuperPanelsReferencing(t *testing.T) {
	store := NewStore(nil)
	child, _ := seedPanel(t, store, "Child panel")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		super, err := tx.CreatePanel(Panel{Name: "Super panel"})
		if err != nil {
			return err
		}
		snapshot, err := tx.CreatePanelSnapshot(PanelSnapshot{PanelID: super.ID, ChildPanels: []string{child.ID}})
		if err != nil {
			return err
		}
		_, err = tx.UpdatePanel(super.ID, func(p *Panel) error {
			p.ActiveSnapshotID = snapshot.ID
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("create super panel: %v", err)
	}
	if err := store.View(context.Background(), func(v TransactionView) error {
		refs := v.SuperPanelsReferencing(child.ID)
		if len(refs) != 1 {
			t.Fatalf("expected one referencing super panel, got %v", refs)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	store.SetNow(func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) })
	panel, _ := seedPanel(t, store, "Skeletal dysplasia")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.EnsureTag("watchlist"); err != nil {
			return err
		}
		_, err := tx.AddActivity(Activity{PanelID: panel.ID, User: "curator", Text: "created panel"})
		return err
	})
	if err != nil {
		t.Fatalf("seed extras: %v", err)
	}

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())
	if len(restored.ListPanels()) != 1 {
		t.Fatalf("expected one restored panel")
	}
	if err := restored.View(context.Background(), func(v TransactionView) error {
		if len(v.ListTags()) != 1 {
			t.Fatalf("tags not restored")
		}
		if len(v.ListActivities(panel.ID)) != 1 {
			t.Fatalf("activities not restored")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCloneEntryIsolation(t *testing.T) {
	entry := domain.EntityRecord{
		Kind:     domain.KindGene,
		Name:     "BRCA1",
		Evidence: []domain.Evidence{{Name: "UKGTN", ReviewerType: domain.ReviewerGEL}},
		Evaluations: []domain.Evaluation{
			{User: "alice", Publications: []string{"123"}},
		},
		Gene: &domain.GeneData{GeneSymbol: "BRCA1", OMIMGene: []string{"113705"}},
	}
	cp := CloneEntry(entry)
	cp.Evidence[0].Name = "changed"
	cp.Evaluations[0].Publications[0] = "changed"
	cp.Gene.OMIMGene[0] = "changed"
	if entry.Evidence[0].Name != "UKGTN" || entry.Evaluations[0].Publications[0] != "123" || entry.Gene.OMIMGene[0] != "113705" {
		t.Fatalf("clone shares memory with original: %+v", entry)
	}
}
