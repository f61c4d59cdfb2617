package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Meta is what the pipeline reads from a body before handing it on untouched
type Meta struct {
	// SourceID is the platform id of the resource, empty when the body has none
	SourceID string
	// Timestamp is the embedded event time: updated_at, else created_at
	Timestamp time.Time
}

// HasTimestamp reports whether the body carried a usable timestamp
func (m Meta) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}

type metaEnvelope struct {
	ID          json.RawMessage `json:"id"`
	UpdatedAt   string          `json:"updated_at"`
	CreatedAt   string          `json:"created_at"`
	DataRequest struct {
		ID json.RawMessage `json:"id"`
	} `json:"data_request"`
}

// ExtractMeta reads the platform id and embedded timestamp from a raw body
func ExtractMeta(data []byte) (Meta, error) {
	var env metaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Meta{}, fmt.Errorf("unmarshaling payload: %w", err)
	}

	meta := Meta{SourceID: rawID(env.ID)}
	if meta.SourceID == "" {
		meta.SourceID = rawID(env.DataRequest.ID)
	}

	for _, candidate := range []string{env.UpdatedAt, env.CreatedAt} {
		if candidate == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, candidate)
		if err != nil {
			return Meta{}, fmt.Errorf("parsing timestamp %q: %w", candidate, err)
		}
		meta.Timestamp = ts.UTC()
		break
	}

	return meta, nil
}

// rawID accepts both numeric and string ids
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
