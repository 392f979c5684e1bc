// Package archive persists frozen panel versions to a blob store. Freezing a
// snapshot hands its serialised form to a Worker, which writes it under
// panels/<panel-id>/<major>.<minor>.json either synchronously or through a
// background queue; the host decides which.
package archive

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	blobcore "panelcore/internal/blob/core"
	"panelcore/pkg/domain"
)

// Status describes the lifecycle stage of an archive request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Request identifies one frozen panel version to archive.
type Request struct {
	PanelID     string
	Version     domain.Version
	Payload     []byte
	RequestedBy string
	Reason      string
}

// Key returns the blob key the payload is stored under.
func (r Request) Key() string {
	return fmt.Sprintf("panels/%s/%s.json", r.PanelID, r.Version)
}

// Record tracks one archive request and its outcome.
type Record struct {
	ID          string         `json:"id"`
	PanelID     string         `json:"panel_id"`
	Version     domain.Version `json:"version"`
	Key         string         `json:"key"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	RequestedBy string         `json:"requested_by"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// AuditLogger records archive audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for snapshot archival.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	PanelID    string    `json:"panel_id"`
	Version    string    `json:"version"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Worker writes frozen snapshots to the blob store.
type Worker struct {
	store blobcore.Store
	audit AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id      string
	request Request
}

// NewWorker constructs an archive worker over the given blob store.
func NewWorker(store blobcore.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:  store,
		audit:  audit,
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing queued archive requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Run archives the request synchronously and returns the completed record.
func (w *Worker) Run(ctx context.Context, req Request) (Record, error) {
	record, err := w.register(ctx, req)
	if err != nil {
		return Record{}, err
	}
	w.process(task{id: record.ID, request: req})
	final, _ := w.Get(record.ID)
	if final.Status == StatusFailed {
		return final, fmt.Errorf("archive %s: %s", final.Key, final.Error)
	}
	return final, nil
}

// Enqueue schedules the request for background archival.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	record, err := w.register(ctx, req)
	if err != nil {
		return Record{}, err
	}
	select {
	case w.queue <- task{id: record.ID, request: req}:
	default:
		w.fail(record.ID, "archive queue full")
		failed, _ := w.Get(record.ID)
		return failed, fmt.Errorf("archive queue full")
	}
	return record, nil
}

// Get returns a snapshot of the archive record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

func (w *Worker) register(ctx context.Context, req Request) (Record, error) {
	if strings.TrimSpace(req.PanelID) == "" {
		return Record{}, fmt.Errorf("panel id required")
	}
	if len(req.Payload) == 0 {
		return Record{}, fmt.Errorf("payload required")
	}
	now := time.Now().UTC()
	record := Record{
		ID:          newID(),
		PanelID:     req.PanelID,
		Version:     req.Version,
		Key:         req.Key(),
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record
	w.mu.Unlock()
	w.recordAudit(ctx, record.ID, StatusQueued, "")
	return snapshot, nil
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, StatusRunning, "")
	if w.store == nil {
		w.fail(t.id, "blob store not configured")
		return
	}
	_, err := w.store.Put(w.ctx, t.request.Key(), strings.NewReader(string(t.request.Payload)), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"panel":   t.request.PanelID,
			"version": t.request.Version.String(),
		},
	})
	if err != nil {
		w.fail(t.id, err.Error())
		return
	}
	w.complete(t.id)
}

func (w *Worker) setStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusFailed, reason)
}

func (w *Worker) recordAudit(ctx context.Context, id string, status Status, errMsg string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	record, ok := w.jobs[id]
	var actor, panelID, version, reason string
	if ok {
		actor = record.RequestedBy
		panelID = record.PanelID
		version = record.Version.String()
		reason = record.Reason
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "snapshot_archive",
		Actor:      actor,
		PanelID:    panelID,
		Version:    version,
		Status:     status,
		Reason:     reason,
		Error:      errMsg,
		OccurredAt: time.Now().UTC(),
	})
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(ctx context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
