// Package validator checks ingest requests against the index schema and
// normalises field values to the types the index mapping expects. It returns
// per-field error details.
package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
)

const (
	maxIDLength      = 255
	maxTextLength    = 1048576
	maxKeywordLength = 1024
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// ValidateID checks a document ID supplied by a caller.
func ValidateID(id string) error {
	switch {
	case id == "":
		return &ValidationError{Fields: map[string]string{"id": "id is required"}}
	case len(id) > maxIDLength:
		return &ValidationError{Fields: map[string]string{"id": fmt.Sprintf("id must be at most %d characters", maxIDLength)}}
	case strings.IndexFunc(id, unicode.IsSpace) >= 0:
		return &ValidationError{Fields: map[string]string{"id": "id must not contain whitespace"}}
	}
	return nil
}

// ValidateIngestRequest checks req against schema (field name to field type)
// and returns the normalised fields: numbers as float64 and datetimes as
// RFC 3339 strings in UTC.
func ValidateIngestRequest(req *ingestion.IngestRequest, schema map[string]string) (map[string]any, error) {
	errs := make(map[string]string)
	if req.ID != "" {
		if err := ValidateID(req.ID); err != nil {
			for k, v := range err.(*ValidationError).Fields {
				errs[k] = v
			}
		}
	}
	if len(req.Fields) == 0 {
		errs["fields"] = "at least one field is required"
	}

	out := make(map[string]any, len(req.Fields))
	for name, raw := range req.Fields {
		typ, ok := schema[name]
		if !ok {
			errs[name] = "field is not in the index schema"
			continue
		}
		v, msg := normalise(typ, raw)
		if msg != "" {
			errs[name] = msg
			continue
		}
		out[name] = v
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return out, nil
}

func normalise(typ string, raw any) (any, string) {
	switch typ {
	case config.FieldText, config.FieldKeyword:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a string"
		}
		limit := maxTextLength
		if typ == config.FieldKeyword {
			limit = maxKeywordLength
		}
		if len(s) > limit {
			return nil, fmt.Sprintf("must be at most %d characters", limit)
		}
		return s, ""
	case config.FieldNumeric:
		switch v := raw.(type) {
		case float64:
			return v, ""
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, "must be a number"
			}
			return f, ""
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, "must be a number"
			}
			return f, ""
		default:
			return nil, "must be a number"
		}
	case config.FieldDatetime:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a date string"
		}
		t, err := config.ParseDate(s)
		if err != nil {
			return nil, "must be an RFC 3339 timestamp or YYYY-MM-DD date"
		}
		return t.UTC().Format(time.RFC3339Nano), ""
	default:
		return nil, fmt.Sprintf("unsupported field type %q", typ)
	}
}
