// Package memory provides the in-memory implementation of the core
// persistence store. It is the canonical store for tests and ephemeral
// environments; the sqlite and postgres stores wrap it with durable
// snapshotting.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"panelcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Panel aliases domain.Panel for in-memory persistence operations.
	Panel = domain.Panel
	// PanelSnapshot aliases domain.PanelSnapshot.
	PanelSnapshot = domain.PanelSnapshot
	// GeneReference aliases domain.GeneReference.
	GeneReference = domain.GeneReference
	// HistoricalSnapshot aliases domain.HistoricalSnapshot.
	HistoricalSnapshot = domain.HistoricalSnapshot
	// Release aliases domain.Release.
	Release = domain.Release
	// Tag aliases domain.Tag.
	Tag = domain.Tag
	// Activity aliases domain.Activity.
	Activity = domain.Activity
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	panels     map[string]Panel
	snapshots  map[string]PanelSnapshot
	genes      map[string]GeneReference
	historical map[string]HistoricalSnapshot
	releases   map[string]Release
	tags       map[string]Tag
	activities []Activity
}

// Snapshot captures a point-in-time serialisable clone of the store state.
type Snapshot struct {
	Panels     map[string]Panel              `json:"panels"`
	Snapshots  map[string]PanelSnapshot      `json:"snapshots"`
	Genes      map[string]GeneReference      `json:"genes"`
	Historical map[string]HistoricalSnapshot `json:"historical"`
	Releases   map[string]Release            `json:"releases"`
	Tags       map[string]Tag                `json:"tags"`
	Activities []Activity                    `json:"activities"`
}

func newMemoryState() memoryState {
	return memoryState{
		panels:     make(map[string]Panel),
		snapshots:  make(map[string]PanelSnapshot),
		genes:      make(map[string]GeneReference),
		historical: make(map[string]HistoricalSnapshot),
		releases:   make(map[string]Release),
		tags:       make(map[string]Tag),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.panels {
		cloned.panels[k] = clonePanel(v)
	}
	for k, v := range s.snapshots {
		cloned.snapshots[k] = cloneSnapshot(v)
	}
	for k, v := range s.genes {
		cloned.genes[k] = cloneGene(v)
	}
	for k, v := range s.historical {
		cloned.historical[k] = cloneHistorical(v)
	}
	for k, v := range s.releases {
		cloned.releases[k] = cloneRelease(v)
	}
	for k, v := range s.tags {
		cloned.tags[k] = v
	}
	cloned.activities = append([]Activity(nil), s.activities...)
	return cloned
}

func clonePanel(p Panel) Panel {
	cp := p
	cp.Types = append([]string(nil), p.Types...)
	if p.SignedOffID != nil {
		id := *p.SignedOffID
		cp.SignedOffID = &id
	}
	return cp
}

func cloneSnapshot(s PanelSnapshot) PanelSnapshot {
	cp := s
	cp.OldPanels = append([]string(nil), s.OldPanels...)
	cp.ChildPanels = append([]string(nil), s.ChildPanels...)
	cp.Stats.Reviewers = append([]string(nil), s.Stats.Reviewers...)
	if s.Entries != nil {
		cp.Entries = make([]domain.EntityRecord, len(s.Entries))
		for i, e := range s.Entries {
			cp.Entries[i] = CloneEntry(e)
		}
	}
	return cp
}

// CloneEntry deep-copies an entity record including nested evidence,
// evaluations, comments, and track records.
func CloneEntry(e domain.EntityRecord) domain.EntityRecord {
	cp := e
	cp.Transcript = append([]string(nil), e.Transcript...)
	cp.Publications = append([]string(nil), e.Publications...)
	cp.Phenotypes = append([]string(nil), e.Phenotypes...)
	cp.Tags = append([]string(nil), e.Tags...)
	cp.Evidence = append([]domain.Evidence(nil), e.Evidence...)
	cp.Comments = append([]domain.Comment(nil), e.Comments...)
	cp.Track = append([]domain.TrackRecord(nil), e.Track...)
	if e.Evaluations != nil {
		cp.Evaluations = make([]domain.Evaluation, len(e.Evaluations))
		for i, ev := range e.Evaluations {
			cp.Evaluations[i] = CloneEvaluation(ev)
		}
	}
	if e.Gene != nil {
		g := *e.Gene
		g.OMIMGene = append([]string(nil), e.Gene.OMIMGene...)
		g.Alias = append([]string(nil), e.Gene.Alias...)
		cp.Gene = &g
	}
	if e.STR != nil {
		str := *e.STR
		if e.STR.Position37 != nil {
			pos := *e.STR.Position37
			str.Position37 = &pos
		}
		cp.STR = &str
	}
	if e.Region != nil {
		region := *e.Region
		if e.Region.Position37 != nil {
			pos := *e.Region.Position37
			region.Position37 = &pos
		}
		cp.Region = &region
	}
	return cp
}

// CloneEvaluation deep-copies an evaluation including its comments.
func CloneEvaluation(ev domain.Evaluation) domain.Evaluation {
	cp := ev
	cp.Publications = append([]string(nil), ev.Publications...)
	cp.Phenotypes = append([]string(nil), ev.Phenotypes...)
	cp.Comments = append([]domain.Comment(nil), ev.Comments...)
	if ev.LastUpdated != nil {
		t := *ev.LastUpdated
		cp.LastUpdated = &t
	}
	return cp
}

func cloneGene(g GeneReference) GeneReference {
	cp := g
	cp.OMIMGene = append([]string(nil), g.OMIMGene...)
	cp.Alias = append([]string(nil), g.Alias...)
	cp.AliasName = append([]string(nil), g.AliasName...)
	if g.EnsemblGenes != nil {
		cp.EnsemblGenes = make(map[string]map[string]domain.EnsemblGene, len(g.EnsemblGenes))
		for build, releases := range g.EnsemblGenes {
			inner := make(map[string]domain.EnsemblGene, len(releases))
			for release, gene := range releases {
				inner[release] = gene
			}
			cp.EnsemblGenes[build] = inner
		}
	}
	return cp
}

func cloneHistorical(h HistoricalSnapshot) HistoricalSnapshot {
	cp := h
	cp.Data = append([]byte(nil), h.Data...)
	if h.SignedOffDate != nil {
		t := *h.SignedOffDate
		cp.SignedOffDate = &t
	}
	return cp
}

func cloneRelease(r Release) Release {
	cp := r
	if r.Panels != nil {
		cp.Panels = make([]domain.ReleasePanel, len(r.Panels))
		for i, rp := range r.Panels {
			rpCopy := rp
			if rp.Deployment != nil {
				d := *rp.Deployment
				rpCopy.Deployment = &d
			}
			cp.Panels[i] = rpCopy
		}
	}
	if r.Deployment != nil {
		d := *r.Deployment
		if r.Deployment.Start != nil {
			t := *r.Deployment.Start
			d.Start = &t
		}
		if r.Deployment.End != nil {
			t := *r.Deployment.End
			d.End = &t
		}
		cp.Deployment = &d
	}
	return cp
}

// Store provides an in-memory transactional store for the curation domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the transaction clock. Intended for tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a deep copy of the committed state for persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{
		Panels:     cloned.panels,
		Snapshots:  cloned.snapshots,
		Genes:      cloned.genes,
		Historical: cloned.historical,
		Releases:   cloned.releases,
		Tags:       cloned.tags,
		Activities: cloned.activities,
	}
}

// ImportState replaces the committed state with the given snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Panels {
		state.panels[k] = clonePanel(v)
	}
	for k, v := range snapshot.Snapshots {
		state.snapshots[k] = cloneSnapshot(v)
	}
	for k, v := range snapshot.Genes {
		state.genes[k] = cloneGene(v)
	}
	for k, v := range snapshot.Historical {
		state.historical[k] = cloneHistorical(v)
	}
	for k, v := range snapshot.Releases {
		state.releases[k] = cloneRelease(v)
	}
	for k, v := range snapshot.Tags {
		state.tags[k] = v
	}
	state.activities = append([]Activity(nil), snapshot.Activities...)
	s.state = state
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

type view struct {
	state *memoryState
}

var (
	_ TransactionView = view{}
	_ domain.RuleView = view{}
)

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules evaluate against the mutated copy; blocking violations abort the
// commit and the previous state stays in place.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() TransactionView { return view{state: &tx.state} }

func (tx *transaction) NewID() string { return tx.store.newID() }

func (tx *transaction) Now() time.Time { return tx.now }

// CreatePanel stores a new panel identity.
func (tx *transaction) CreatePanel(p Panel) (Panel, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.panels[p.ID]; exists {
		return Panel{}, fmt.Errorf("panel %q already exists", p.ID)
	}
	for _, existing := range tx.state.panels {
		if existing.Name == p.Name && existing.Status != domain.StatusDeleted {
			return Panel{}, domain.ErrConflict{Entity: domain.EntityPanel, ID: p.Name, Reason: "name in use"}
		}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.panels[p.ID] = clonePanel(p)
	tx.recordChange(Change{Entity: domain.EntityPanel, Action: domain.ActionCreate, After: clonePanel(p)})
	return clonePanel(p), nil
}

// UpdatePanel mutates a panel using the provided mutator function.
func (tx *transaction) UpdatePanel(id string, mutator func(*Panel) error) (Panel, error) {
	current, ok := tx.state.panels[id]
	if !ok {
		return Panel{}, domain.ErrNotFound{Entity: domain.EntityPanel, ID: id}
	}
	before := clonePanel(current)
	if err := mutator(&current); err != nil {
		return Panel{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.panels[id] = clonePanel(current)
	tx.recordChange(Change{Entity: domain.EntityPanel, Action: domain.ActionUpdate, Before: before, After: clonePanel(current)})
	return clonePanel(current), nil
}

// CreatePanelSnapshot stores a new panel snapshot.
func (tx *transaction) CreatePanelSnapshot(ps PanelSnapshot) (PanelSnapshot, error) {
	if ps.ID == "" {
		ps.ID = tx.store.newID()
	}
	if _, exists := tx.state.snapshots[ps.ID]; exists {
		return PanelSnapshot{}, fmt.Errorf("snapshot %q already exists", ps.ID)
	}
	if _, ok := tx.state.panels[ps.PanelID]; !ok {
		return PanelSnapshot{}, domain.ErrNotFound{Entity: domain.EntityPanel, ID: ps.PanelID}
	}
	ps.CreatedAt = tx.now
	ps.UpdatedAt = tx.now
	tx.state.snapshots[ps.ID] = cloneSnapshot(ps)
	tx.recordChange(Change{Entity: domain.EntityPanelSnapshot, Action: domain.ActionCreate, After: cloneSnapshot(ps)})
	return cloneSnapshot(ps), nil
}

// UpdatePanelSnapshot mutates an existing panel snapshot.
func (tx *transaction) UpdatePanelSnapshot(id string, mutator func(*PanelSnapshot) error) (PanelSnapshot, error) {
	current, ok := tx.state.snapshots[id]
	if !ok {
		return PanelSnapshot{}, domain.ErrNotFound{Entity: domain.EntityPanelSnapshot, ID: id}
	}
	before := cloneSnapshot(current)
	if err := mutator(&current); err != nil {
		return PanelSnapshot{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.snapshots[id] = cloneSnapshot(current)
	tx.recordChange(Change{Entity: domain.EntityPanelSnapshot, Action: domain.ActionUpdate, Before: before, After: cloneSnapshot(current)})
	return cloneSnapshot(current), nil
}

// DeletePanelSnapshot removes a snapshot from state. Used when a frozen
// version is superseded in place rather than archived.
func (tx *transaction) DeletePanelSnapshot(id string) error {
	current, ok := tx.state.snapshots[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPanelSnapshot, ID: id}
	}
	delete(tx.state.snapshots, id)
	tx.recordChange(Change{Entity: domain.EntityPanelSnapshot, Action: domain.ActionDelete, Before: cloneSnapshot(current)})
	return nil
}

// CreateGeneReference stores a new reference catalog row keyed by symbol.
func (tx *transaction) CreateGeneReference(g GeneReference) (GeneReference, error) {
	if g.GeneSymbol == "" {
		return GeneReference{}, domain.ErrValidation{Field: "gene_symbol", Message: "required"}
	}
	if _, exists := tx.state.genes[g.GeneSymbol]; exists {
		return GeneReference{}, domain.ErrConflict{Entity: domain.EntityGeneReference, ID: g.GeneSymbol, Reason: "symbol in use"}
	}
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.genes[g.GeneSymbol] = cloneGene(g)
	tx.recordChange(Change{Entity: domain.EntityGeneReference, Action: domain.ActionCreate, After: cloneGene(g)})
	return cloneGene(g), nil
}

// UpdateGeneReference mutates a catalog row. The mutator may rename the
// symbol; the row is rekeyed and the old symbol freed.
func (tx *transaction) UpdateGeneReference(symbol string, mutator func(*GeneReference) error) (GeneReference, error) {
	current, ok := tx.state.genes[symbol]
	if !ok {
		return GeneReference{}, domain.ErrNotFound{Entity: domain.EntityGeneReference, ID: symbol}
	}
	before := cloneGene(current)
	if err := mutator(&current); err != nil {
		return GeneReference{}, err
	}
	if current.GeneSymbol == "" {
		return GeneReference{}, domain.ErrValidation{Field: "gene_symbol", Message: "required"}
	}
	if current.GeneSymbol != symbol {
		if _, exists := tx.state.genes[current.GeneSymbol]; exists {
			return GeneReference{}, domain.ErrConflict{Entity: domain.EntityGeneReference, ID: current.GeneSymbol, Reason: "symbol in use"}
		}
		delete(tx.state.genes, symbol)
	}
	current.UpdatedAt = tx.now
	tx.state.genes[current.GeneSymbol] = cloneGene(current)
	tx.recordChange(Change{Entity: domain.EntityGeneReference, Action: domain.ActionUpdate, Before: before, After: cloneGene(current)})
	return cloneGene(current), nil
}

// CreateHistoricalSnapshot stores a frozen version record. At most one record
// may exist per (panel, version).
func (tx *transaction) CreateHistoricalSnapshot(h HistoricalSnapshot) (HistoricalSnapshot, error) {
	if h.ID == "" {
		h.ID = tx.store.newID()
	}
	if _, exists := tx.state.historical[h.ID]; exists {
		return HistoricalSnapshot{}, fmt.Errorf("historical snapshot %q already exists", h.ID)
	}
	for _, existing := range tx.state.historical {
		if existing.PanelID == h.PanelID && existing.Version == h.Version {
			return HistoricalSnapshot{}, domain.ErrConflict{
				Entity: domain.EntityHistoricalSnapshot,
				ID:     h.PanelID,
				Reason: fmt.Sprintf("version %s already frozen", h.Version),
			}
		}
	}
	h.CreatedAt = tx.now
	tx.state.historical[h.ID] = cloneHistorical(h)
	tx.recordChange(Change{Entity: domain.EntityHistoricalSnapshot, Action: domain.ActionCreate, After: cloneHistorical(h)})
	return cloneHistorical(h), nil
}

// CreateRelease stores a release batch.
func (tx *transaction) CreateRelease(r Release) (Release, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.releases[r.ID]; exists {
		return Release{}, fmt.Errorf("release %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.releases[r.ID] = cloneRelease(r)
	tx.recordChange(Change{Entity: domain.EntityRelease, Action: domain.ActionCreate, After: cloneRelease(r)})
	return cloneRelease(r), nil
}

// UpdateRelease mutates an existing release.
func (tx *transaction) UpdateRelease(id string, mutator func(*Release) error) (Release, error) {
	current, ok := tx.state.releases[id]
	if !ok {
		return Release{}, domain.ErrNotFound{Entity: domain.EntityRelease, ID: id}
	}
	before := cloneRelease(current)
	if err := mutator(&current); err != nil {
		return Release{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.releases[id] = cloneRelease(current)
	tx.recordChange(Change{Entity: domain.EntityRelease, Action: domain.ActionUpdate, Before: before, After: cloneRelease(current)})
	return cloneRelease(current), nil
}

// EnsureTag returns the tag with the given name, creating it on first use.
func (tx *transaction) EnsureTag(name string) (Tag, error) {
	if name == "" {
		return Tag{}, domain.ErrValidation{Field: "tag", Message: "required"}
	}
	if existing, ok := tx.state.tags[name]; ok {
		return existing, nil
	}
	tag := Tag{Name: name}
	tag.ID = tx.store.newID()
	tag.CreatedAt = tx.now
	tag.UpdatedAt = tx.now
	tx.state.tags[name] = tag
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionCreate, After: tag})
	return tag, nil
}

// AddActivity appends an audit row to the panel activity stream.
func (tx *transaction) AddActivity(a Activity) (Activity, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	a.CreatedAt = tx.now
	tx.state.activities = append(tx.state.activities, a)
	tx.recordChange(Change{Entity: domain.EntityActivity, Action: domain.ActionCreate, After: a})
	return a, nil
}

// View methods --------------------------------------------------------------

func (v view) ListPanels() []Panel {
	out := make([]Panel, 0, len(v.state.panels))
	for _, p := range v.state.panels {
		out = append(out, clonePanel(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) FindPanel(id string) (Panel, bool) {
	p, ok := v.state.panels[id]
	if !ok {
		return Panel{}, false
	}
	return clonePanel(p), true
}

func (v view) FindPanelByName(name string) (Panel, bool) {
	for _, p := range v.state.panels {
		if p.Name == name && p.Status != domain.StatusDeleted {
			return clonePanel(p), true
		}
	}
	return Panel{}, false
}

func (v view) FindPanelSnapshot(id string) (PanelSnapshot, bool) {
	s, ok := v.state.snapshots[id]
	if !ok {
		return PanelSnapshot{}, false
	}
	return cloneSnapshot(s), true
}

// ListPanelSnapshots returns a panel's snapshots ordered by
// (major, minor, updated, id) ascending, so the last element is the one an
// active-version lookup would resolve.
func (v view) ListPanelSnapshots(panelID string) []PanelSnapshot {
	var out []PanelSnapshot
	for _, s := range v.state.snapshots {
		if s.PanelID == panelID {
			out = append(out, cloneSnapshot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version.Less(out[j].Version)
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v view) ActiveSnapshot(panelID string) (PanelSnapshot, bool) {
	p, ok := v.state.panels[panelID]
	if !ok {
		return PanelSnapshot{}, false
	}
	s, ok := v.state.snapshots[p.ActiveSnapshotID]
	if !ok {
		return PanelSnapshot{}, false
	}
	return cloneSnapshot(s), true
}

func (v view) SuperPanelsReferencing(panelID string) []string {
	var out []string
	for id, p := range v.state.panels {
		if p.Status == domain.StatusDeleted {
			continue
		}
		active, ok := v.state.snapshots[p.ActiveSnapshotID]
		if !ok {
			continue
		}
		for _, child := range active.ChildPanels {
			if child == panelID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (v view) FindGeneReference(symbol string) (GeneReference, bool) {
	g, ok := v.state.genes[symbol]
	if !ok {
		return GeneReference{}, false
	}
	return cloneGene(g), true
}

func (v view) ListGeneReferences() []GeneReference {
	out := make([]GeneReference, 0, len(v.state.genes))
	for _, g := range v.state.genes {
		out = append(out, cloneGene(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneSymbol < out[j].GeneSymbol })
	return out
}

func (v view) FindHistoricalSnapshot(panelID string, version domain.Version) (HistoricalSnapshot, bool) {
	for _, h := range v.state.historical {
		if h.PanelID == panelID && h.Version == version {
			return cloneHistorical(h), true
		}
	}
	return HistoricalSnapshot{}, false
}

func (v view) ListHistoricalSnapshots(panelID string) []HistoricalSnapshot {
	var out []HistoricalSnapshot
	for _, h := range v.state.historical {
		if h.PanelID == panelID {
			out = append(out, cloneHistorical(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version.Less(out[j].Version) })
	return out
}

func (v view) FindRelease(id string) (Release, bool) {
	r, ok := v.state.releases[id]
	if !ok {
		return Release{}, false
	}
	return cloneRelease(r), true
}

func (v view) ListReleases() []Release {
	out := make([]Release, 0, len(v.state.releases))
	for _, r := range v.state.releases {
		out = append(out, cloneRelease(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v view) ListTags() []Tag {
	out := make([]Tag, 0, len(v.state.tags))
	for _, t := range v.state.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v view) ListActivities(panelID string) []Activity {
	var out []Activity
	for _, a := range v.state.activities {
		if a.PanelID == panelID {
			out = append(out, a)
		}
	}
	return out
}

// Read helpers ---------------------------------------------------------------

// GetPanel retrieves a panel by ID from committed state.
func (s *Store) GetPanel(id string) (Panel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.panels[id]
	if !ok {
		return Panel{}, false
	}
	return clonePanel(p), true
}

// ListPanels returns all panels from committed state.
func (s *Store) ListPanels() []Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListPanels()
}

// GetPanelSnapshot retrieves a snapshot by ID from committed state.
func (s *Store) GetPanelSnapshot(id string) (PanelSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.state.snapshots[id]
	if !ok {
		return PanelSnapshot{}, false
	}
	return cloneSnapshot(ps), true
}

// ListPanelSnapshots returns a panel's snapshots from committed state.
func (s *Store) ListPanelSnapshots(panelID string) []PanelSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListPanelSnapshots(panelID)
}

// ListGeneReferences returns the reference catalog from committed state.
func (s *Store) ListGeneReferences() []GeneReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListGeneReferences()
}

// ListReleases returns all releases from committed state.
func (s *Store) ListReleases() []Release {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListReleases()
}

// ListHistoricalSnapshots returns a panel's frozen versions from committed state.
func (s *Store) ListHistoricalSnapshots(panelID string) []HistoricalSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListHistoricalSnapshots(panelID)
}
