package filing

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DecodeRecord parses a stored record in any historical shape.
func DecodeRecord(data []byte) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, err
	}
	return NormalizeRecord(raw), nil
}

// NormalizeRecord maps a loosely typed stored record onto Record. Document
// ids and revision numbers may be numbers or strings; several field names
// from older formats are accepted.
func NormalizeRecord(raw map[string]any) Record {
	r := Record{
		Sent:           asBool(first(raw, "sent", "filed", "isFiled")),
		CaseID:         asString(first(raw, "caseId", "case_id", "matterId")),
		DocumentID:     asString(first(raw, "documentId", "docId", "document_id", "docID")),
		RevisionNumber: asInt(first(raw, "revisionNumber", "revision", "version", "rev")),
		RecordID:       asString(first(raw, "recordId", "record_id", "id")),
		FiledAt:        asMillis(first(raw, "filedAt", "filed_at", "timestamp")),
	}
	// Older records had no flag and were only written on success.
	if first(raw, "sent", "filed", "isFiled") == nil && r.DocumentID != "" {
		r.Sent = true
	}
	return r
}

func first(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	default:
		return false
	}
}

// asMillis accepts unix millis, unix seconds or an RFC 3339 string.
func asMillis(v any) int64 {
	switch t := v.(type) {
	case float64:
		if t > 0 && t < 1e11 {
			return int64(t) * 1000
		}
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return asMillis(float64(n))
		}
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(t)); err == nil {
			return ts.UnixMilli()
		}
		return 0
	default:
		return 0
	}
}
