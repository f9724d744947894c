package events

import (
	"encoding/json"
	"fmt"

	"github.com/Health-Education-England/tis-trainee-actions/internal/dto"
)

// recordEnvelope mirrors the sync message shape: the operation and tisId sit
// at the record level, with the entity fields nested under data.
type recordEnvelope struct {
	Record struct {
		Operation dto.Operation   `json:"operation"`
		TisID     string          `json:"tisId"`
		Data      json.RawMessage `json:"data"`
	} `json:"record"`
}

// DecodeRecord unpacks a sync message body into the given payload struct and
// returns the operation tag. Delete messages arrive unenriched and may be
// missing the tisId inside the data object, so the record-level tisId is
// copied in when absent.
func DecodeRecord(body []byte, payload any) (dto.Operation, error) {
	var envelope recordEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode record envelope: %w", err)
	}

	data := envelope.Record.Data
	if len(data) == 0 {
		return envelope.Record.Operation, fmt.Errorf("record has no data")
	}

	if envelope.Record.TisID != "" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return envelope.Record.Operation, fmt.Errorf("failed to decode record data: %w", err)
		}
		if raw, ok := fields["tisId"]; !ok || string(raw) == "null" {
			fields["tisId"] = json.RawMessage(fmt.Sprintf("%q", envelope.Record.TisID))
			enriched, err := json.Marshal(fields)
			if err != nil {
				return envelope.Record.Operation, fmt.Errorf("failed to re-encode record data: %w", err)
			}
			data = enriched
		}
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return envelope.Record.Operation, fmt.Errorf("failed to decode record data: %w", err)
	}
	return envelope.Record.Operation, nil
}
