package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreatePanel(Panel) (Panel, error)
	UpdatePanel(id string, mutator func(*Panel) error) (Panel, error)
	CreatePanelSnapshot(PanelSnapshot) (PanelSnapshot, error)
	UpdatePanelSnapshot(id string, mutator func(*PanelSnapshot) error) (PanelSnapshot, error)
	DeletePanelSnapshot(id string) error
	CreateGeneReference(GeneReference) (GeneReference, error)
	UpdateGeneReference(symbol string, mutator func(*GeneReference) error) (GeneReference, error)
	CreateHistoricalSnapshot(HistoricalSnapshot) (HistoricalSnapshot, error)
	CreateRelease(Release) (Release, error)
	UpdateRelease(id string, mutator func(*Release) error) (Release, error)
	EnsureTag(name string) (Tag, error)
	AddActivity(Activity) (Activity, error)
	NewID() string
	Now() time.Time
}

// TransactionView provides read-only access to the transaction's working
// state. Implementations also satisfy RuleView.
type TransactionView interface {
	ListPanels() []Panel
	FindPanel(id string) (Panel, bool)
	FindPanelByName(name string) (Panel, bool)
	FindPanelSnapshot(id string) (PanelSnapshot, bool)
	ListPanelSnapshots(panelID string) []PanelSnapshot
	// ActiveSnapshot resolves the panel's working snapshot.
	ActiveSnapshot(panelID string) (PanelSnapshot, bool)
	// SuperPanelsReferencing lists panel ids whose active snapshot includes
	// the given panel as a child, ascending by id.
	SuperPanelsReferencing(panelID string) []string
	FindGeneReference(symbol string) (GeneReference, bool)
	ListGeneReferences() []GeneReference
	FindHistoricalSnapshot(panelID string, version Version) (HistoricalSnapshot, bool)
	ListHistoricalSnapshots(panelID string) []HistoricalSnapshot
	FindRelease(id string) (Release, bool)
	ListReleases() []Release
	ListTags() []Tag
	ListActivities(panelID string) []Activity
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPanel(id string) (Panel, bool)
	ListPanels() []Panel
	GetPanelSnapshot(id string) (PanelSnapshot, bool)
	ListPanelSnapshots(panelID string) []PanelSnapshot
	ListGeneReferences() []GeneReference
	ListReleases() []Release
	ListHistoricalSnapshots(panelID string) []HistoricalSnapshot
}
