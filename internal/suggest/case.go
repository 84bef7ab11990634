package suggest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hpungsan/casefile/internal/errors"
)

// Case is the canonical case shape every scoring path works on.
type Case struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	VisibleReference string `json:"visibleReference,omitempty"`
	ClientName       string `json:"clientName,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Accepted spellings per canonical field, in priority order.
var (
	idFields        = []string{"id", "caseId", "case_id", "caseID", "key"}
	titleFields     = []string{"title", "name", "label", "caseTitle", "case_title", "displayName", "subject"}
	referenceFields = []string{"reference", "ref", "visibleReference", "caseNumber", "case_number", "fileNumber", "number", "code"}
	clientFields    = []string{"clientName", "client_name", "client", "customer"}
	statusFields    = []string{"status", "state"}
)

// FromRaw maps one loosely typed case object onto Case.
// Returns false when no identifier can be found.
func FromRaw(raw map[string]any) (Case, bool) {
	c := Case{
		ID:               pick(raw, idFields),
		Title:            pick(raw, titleFields),
		VisibleReference: pick(raw, referenceFields),
		ClientName:       pick(raw, clientFields),
		Status:           pick(raw, statusFields),
	}
	if c.ID == "" {
		return Case{}, false
	}
	return c, true
}

// DecodeCases parses a JSON array of case objects, or an object wrapping
// one under "cases" or "items". Entries without an identifier are skipped.
func DecodeCases(data []byte) ([]Case, error) {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Cases []map[string]any `json:"cases"`
			Items []map[string]any `json:"items"`
		}
		if werr := json.Unmarshal(data, &wrapped); werr != nil {
			return nil, errors.NewInvalidRequest("cases must be a JSON array of objects")
		}
		list = wrapped.Cases
		if list == nil {
			list = wrapped.Items
		}
	}

	cases := make([]Case, 0, len(list))
	for _, raw := range list {
		if c, ok := FromRaw(raw); ok {
			cases = append(cases, c)
		}
	}
	return cases, nil
}

func pick(raw map[string]any, fields []string) string {
	for _, f := range fields {
		if s := stringify(raw[f]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		// {"name": "..."} as used for client objects.
		return stringify(t["name"])
	default:
		return ""
	}
}
