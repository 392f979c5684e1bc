package core

import (
	"encoding/json"
	"fmt"
	"time"

	"panelcore/pkg/domain"
)

// SchemaVersion tags rendered historical payloads so future readers can
// dispatch on shape.
const SchemaVersion = "v1"

// archivedPanel is the JSON projection written into a historical snapshot and
// the blob archive. It denormalises enough panel identity that the payload is
// readable on its own.
type archivedPanel struct {
	SchemaVersion string               `json:"schema_version"`
	PanelID       string               `json:"panel_id"`
	PanelName     string               `json:"panel_name"`
	Status        domain.PanelStatus   `json:"status"`
	Types         []string             `json:"types,omitempty"`
	Snapshot      domain.PanelSnapshot `json:"snapshot"`
	RenderedAt    time.Time            `json:"rendered_at"`
}

// renderHistorical freezes the given snapshot into a historical record. The
// caller creates the record inside its transaction.
func renderHistorical(tx Transaction, panel Panel, snapshot PanelSnapshot, reason string, signedOff *time.Time) (HistoricalSnapshot, error) {
	payload := archivedPanel{
		SchemaVersion: SchemaVersion,
		PanelID:       panel.ID,
		PanelName:     panel.Name,
		Status:        panel.Status,
		Types:         panel.Types,
		Snapshot:      snapshot,
		RenderedAt:    tx.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return HistoricalSnapshot{}, fmt.Errorf("render panel %s version %s: %w", panel.ID, snapshot.Version, err)
	}
	return HistoricalSnapshot{
		ID:            tx.NewID(),
		PanelID:       panel.ID,
		Version:       snapshot.Version,
		SchemaVersion: SchemaVersion,
		Reason:        reason,
		Data:          data,
		SignedOffDate: signedOff,
		CreatedAt:     tx.Now(),
	}, nil
}
