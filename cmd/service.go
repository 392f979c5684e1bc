package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"

	"panelcore/internal/archive"
	"panelcore/internal/core"
	"panelcore/internal/imports"
	"panelcore/pkg/domain"
)

// openService wires the persistent store, the snapshot archive, and the
// curation service from the ambient configuration. The returned closer stops
// the archive worker.
func openService(ctx context.Context) (*core.Service, func(), error) {
	store, err := core.OpenPersistentStore(nil)
	if err != nil {
		return nil, nil, err
	}
	blobs, err := core.OpenBlobStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	worker := archive.NewWorker(blobs, slogAuditLog{})
	worker.Start()
	metrics := core.NewExpvarMetricsRecorder("panelcore")
	svc := core.NewService(store, core.Options{Archiver: worker, Metrics: metrics})
	closer := func() {
		if err := worker.Stop(context.Background()); err != nil {
			slog.Warn("archive worker did not stop cleanly", "error", err)
		}
	}
	return svc, closer, nil
}

func openImporter(ctx context.Context) (*imports.Importer, *core.Service, func(), error) {
	svc, closer, err := openService(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return imports.NewImporter(svc), svc, closer, nil
}

// actingUser resolves the curator identity used for CLI mutations.
func actingUser() domain.User {
	return domain.User{Name: viper.GetString("user"), Type: domain.ReviewerGEL}
}

// slogAuditLog forwards archive audit entries to the process logger.
type slogAuditLog struct{}

func (slogAuditLog) Record(ctx context.Context, entry archive.AuditEntry) {
	slog.InfoContext(ctx, "snapshot archive",
		"panel", entry.PanelID,
		"version", entry.Version,
		"status", entry.Status,
		"actor", entry.Actor,
		"error", entry.Error,
	)
}
