// Package core implements the curation service: versioned panel mutation,
// cross-panel review copy, super-panel aggregation, releases, reference
// catalog updates, and the commit-time curation rules.
package core

import (
	"context"
	"time"

	"panelcore/internal/archive"
	"panelcore/pkg/domain"
)

// Aliases keep service signatures concise while exposing domain types.
type (
	Panel              = domain.Panel
	PanelSnapshot      = domain.PanelSnapshot
	EntityRecord       = domain.EntityRecord
	GeneReference      = domain.GeneReference
	HistoricalSnapshot = domain.HistoricalSnapshot
	Release            = domain.Release
	Activity           = domain.Activity
	User               = domain.User
	Version            = domain.Version
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Archiver persists frozen snapshot payloads outside the store.
type Archiver interface {
	Run(ctx context.Context, req archive.Request) (archive.Record, error)
}

// Options configures optional service collaborators.
type Options struct {
	Archiver Archiver
	Metrics  MetricsRecorder
}

// Service exposes the transactional curation operations.
type Service struct {
	store    PersistentStore
	archiver Archiver
	metrics  MetricsRecorder
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts Options) *Service {
	return &Service{
		store:    store,
		archiver: opts.Archiver,
		metrics:  opts.Metrics,
	}
}

// NewInMemoryService creates a service over an in-memory store with the
// default curation rules.
func NewInMemoryService() *Service {
	return NewService(newMemoryStore(), Options{})
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
}

// frozenPayload carries a rendered historical snapshot out of a committed
// transaction so it can be archived without holding the store lock.
type frozenPayload struct {
	PanelID string
	Version Version
	Payload []byte
	User    string
	Reason  string
}

func (s *Service) archiveFrozen(ctx context.Context, frozen []frozenPayload) {
	if s.archiver == nil {
		return
	}
	for _, f := range frozen {
		// Archive failures do not roll back the committed transaction; the
		// historical record in the store remains authoritative.
		_, _ = s.archiver.Run(ctx, archive.Request{
			PanelID:     f.PanelID,
			Version:     f.Version,
			Payload:     f.Payload,
			RequestedBy: f.User,
			Reason:      f.Reason,
		})
	}
}
