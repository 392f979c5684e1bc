package imports

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"panelcore/internal/core"
	"panelcore/pkg/domain"
)

// Synchronous execution thresholds. Bigger uploads run as background jobs so
// the caller is not held for the whole transaction.
const (
	EntitySyncMaxRows          = 200
	EntitySyncMaxPanelEntities = 200
	ReviewSyncMaxRows          = 50
)

// Status describes an import job's lifecycle stage.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job tracks one upload through validation and application.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Rows      int       `json:"rows"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Importer validates uploads and applies them through the curation service,
// synchronously for small files and in the background for large ones.
type Importer struct {
	svc *core.Service

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewImporter constructs an importer over the service.
func NewImporter(svc *core.Service) *Importer {
	return &Importer{svc: svc, jobs: make(map[string]*Job)}
}

// Job returns a snapshot of one tracked job.
func (im *Importer) Job(id string) (Job, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	job, ok := im.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Wait blocks until all background jobs finish or the context expires.
func (im *Importer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		im.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImportEntities parses, validates, and applies an entity upload. The whole
// file is validated before anything is written; rejected uploads return
// ImportValidationError and leave no trace. Small uploads apply before
// returning, large ones continue in the background under the returned job id.
func (im *Importer) ImportEntities(ctx context.Context, r io.Reader, user domain.User) (Job, error) {
	rows, err := ParseEntityTSV(r)
	if err != nil {
		return Job{}, err
	}
	var batches []core.EntityBatch
	runSync := true
	if err := im.svc.Store().View(ctx, func(view domain.TransactionView) error {
		if invalid := ValidateEntityRows(view, rows); len(invalid) > 0 {
			return domain.ImportValidationError{Rows: invalid}
		}
		batches, err = GroupEntityRows(view, rows)
		if err != nil {
			return err
		}
		runSync = entityUploadIsSmall(view, rows, batches)
		return nil
	}); err != nil {
		return Job{}, err
	}

	job := im.register("entities", len(rows))
	apply := func(ctx context.Context) error {
		_, err := im.svc.ImportEntityBatches(ctx, batches, user)
		return err
	}
	if runSync {
		return im.runNow(ctx, job.ID, apply)
	}
	return im.runBackground(job.ID, apply), nil
}

// ImportReviews parses, validates, and applies a review upload with the same
// all-or-nothing contract as ImportEntities.
func (im *Importer) ImportReviews(ctx context.Context, r io.Reader, user domain.User) (Job, error) {
	rows, err := ParseReviewTSV(r)
	if err != nil {
		return Job{}, err
	}
	var batches []core.ReviewBatch
	if err := im.svc.Store().View(ctx, func(view domain.TransactionView) error {
		if invalid := ValidateReviewRows(view, rows); len(invalid) > 0 {
			return domain.ImportValidationError{Rows: invalid}
		}
		batches, err = GroupReviewRows(view, rows)
		return err
	}); err != nil {
		return Job{}, err
	}

	job := im.register("reviews", len(rows))
	apply := func(ctx context.Context) error {
		_, err := im.svc.ImportReviewBatches(ctx, batches, user)
		return err
	}
	if len(rows) < ReviewSyncMaxRows {
		return im.runNow(ctx, job.ID, apply)
	}
	return im.runBackground(job.ID, apply), nil
}

// ImportGeneCollection parses and applies a gene-reference revision. Catalog
// updates always run synchronously.
func (im *Importer) ImportGeneCollection(ctx context.Context, r io.Reader, user domain.User) (core.CollectionUpdateResult, error) {
	update, err := ParseGeneCollection(r)
	if err != nil {
		return core.CollectionUpdateResult{}, err
	}
	return im.svc.UpdateGeneCollection(ctx, update, user)
}

// entityUploadIsSmall applies the synchronous threshold: few rows and no
// affected panel already carrying a large entry set.
func entityUploadIsSmall(view domain.TransactionView, rows []EntityRow, batches []core.EntityBatch) bool {
	if len(rows) >= EntitySyncMaxRows {
		return false
	}
	for _, batch := range batches {
		active, ok := view.ActiveSnapshot(batch.PanelID)
		if !ok {
			continue
		}
		if len(active.Entries) > EntitySyncMaxPanelEntities {
			return false
		}
	}
	return true
}

func (im *Importer) register(kind string, rows int) Job {
	now := time.Now().UTC()
	job := &Job{
		ID:        newJobID(),
		Kind:      kind,
		Rows:      rows,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	im.mu.Lock()
	im.jobs[job.ID] = job
	im.mu.Unlock()
	return *job
}

func (im *Importer) runNow(ctx context.Context, id string, apply func(context.Context) error) (Job, error) {
	im.setStatus(id, StatusRunning, "")
	if err := apply(ctx); err != nil {
		im.setStatus(id, StatusFailed, err.Error())
		job, _ := im.Job(id)
		return job, err
	}
	im.setStatus(id, StatusSucceeded, "")
	job, _ := im.Job(id)
	return job, nil
}

func (im *Importer) runBackground(id string, apply func(context.Context) error) Job {
	im.wg.Add(1)
	go func() {
		defer im.wg.Done()
		im.setStatus(id, StatusRunning, "")
		if err := apply(context.Background()); err != nil {
			im.setStatus(id, StatusFailed, err.Error())
			return
		}
		im.setStatus(id, StatusSucceeded, "")
	}()
	job, _ := im.Job(id)
	return job
}

func (im *Importer) setStatus(id string, status Status, message string) {
	im.mu.Lock()
	if job, ok := im.jobs[id]; ok {
		job.Status = status
		job.Error = message
		job.UpdatedAt = time.Now().UTC()
	}
	im.mu.Unlock()
}

func newJobID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
