// Package validation checks request payloads against named JSON schemas
// before any store interaction happens.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"docgate/internal/apperr"
)

const (
	DefaultFetchLimit  = 10
	DefaultFetchOffset = 0
)

func init() {
	gojsonschema.FormatCheckers.Add("lowercase", lowercaseChecker{})
}

type lowercaseChecker struct{}

func (lowercaseChecker) IsFormat(input interface{}) bool {
	s, ok := input.(string)
	if !ok {
		return true
	}
	return s == strings.ToLower(s)
}

// Result is the outcome of one validation. Data holds the normalized payload
// and is only meaningful when Valid is true.
type Result struct {
	Valid  bool
	Errors []apperr.FieldError
	Data   map[string]any
}

// Err returns the validation failure as a typed error, or nil.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return apperr.Validation("Invalid payload", r.Errors)
}

// Gate holds the compiled schema catalog. It is safe for concurrent use.
type Gate struct {
	schemas map[string]*gojsonschema.Schema
}

func NewGate() (*Gate, error) {
	g := &Gate{schemas: make(map[string]*gojsonschema.Schema, len(schemaSources))}
	for name, src := range schemaSources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %q: %w", name, err)
		}
		g.schemas[name] = s
	}
	return g, nil
}

// Validate checks payload against the named schema. An error is returned only
// for an unknown schema name or an undecodable payload; constraint
// violations are reported in the Result.
func (g *Gate) Validate(schemaName string, payload any) (Result, error) {
	schema, ok := g.schemas[schemaName]
	if !ok {
		return Result{}, fmt.Errorf("unknown schema %q", schemaName)
	}

	data, isObject := payload.(map[string]any)
	if isObject {
		data = prepare(schemaName, data)
		payload = data
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to validate payload: %w", err)
	}
	if !res.Valid() {
		return Result{Errors: fieldErrors(res.Errors())}, nil
	}
	return Result{Valid: true, Data: finish(schemaName, data)}, nil
}

// prepare copies the payload and applies input normalization that must happen
// before constraints are checked.
func prepare(schemaName string, in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	if schemaName == SchemaSignup {
		if email, ok := out["email"].(string); ok {
			out["email"] = strings.ToLower(strings.TrimSpace(email))
		}
	}
	return out
}

// finish applies defaults and aliases to an already valid payload.
func finish(schemaName string, data map[string]any) map[string]any {
	switch schemaName {
	case SchemaInsertDocument, SchemaFetchDocuments, SchemaUpdateDocument, SchemaDeleteDocument:
		if name, ok := data["databaseName"].(string); ok {
			data["databaseName"] = strings.ToLower(name)
		}
	}
	switch schemaName {
	case SchemaFetchDocuments:
		if _, ok := data["query"]; !ok {
			data["query"] = map[string]any{}
		}
		if _, ok := data["limit"]; !ok {
			data["limit"] = DefaultFetchLimit
		}
		if _, ok := data["offset"]; !ok {
			data["offset"] = DefaultFetchOffset
		}
	case SchemaUpdateDocument, SchemaDeleteDocument:
		// query is the legacy spelling of filter.
		if _, ok := data["filter"]; !ok {
			data["filter"] = data["query"]
		}
	}
	return data
}

func fieldErrors(errs []gojsonschema.ResultError) []apperr.FieldError {
	seen := make(map[apperr.FieldError]bool, len(errs))
	out := make([]apperr.FieldError, 0, len(errs))
	for _, e := range errs {
		fe, ok := fieldError(e)
		if !ok || seen[fe] {
			continue
		}
		seen[fe] = true
		out = append(out, fe)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func fieldError(e gojsonschema.ResultError) (apperr.FieldError, bool) {
	field := e.Field()
	switch e.Type() {
	case "number_any_of":
		return apperr.FieldError{}, false
	case "required":
		prop, _ := e.Details()["property"].(string)
		if prop == "query" {
			prop = "filter"
		}
		return apperr.FieldError{Field: prop, Message: prop + " is required"}, true
	case "format":
		if e.Details()["format"] == "lowercase" {
			return apperr.FieldError{Field: field, Message: lowercaseMessage(field)}, true
		}
	}
	return apperr.FieldError{Field: field, Message: e.Description()}, true
}

func lowercaseMessage(field string) string {
	switch {
	case field == "databaseName":
		return "Database name must be in lowercase"
	case field == "collectionName":
		return "Collection name must be in lowercase"
	case strings.HasPrefix(field, "collectionName."):
		return "Collection names must be in lowercase"
	}
	return field + " must be in lowercase"
}

// String returns the string field key, or "".
func (r Result) String(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// Names returns a name-or-list field as a list.
func (r Result) Names(key string) []string {
	switch v := r.Data[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Object returns the object field key, or an empty map.
func (r Result) Object(key string) map[string]any {
	if m, ok := r.Data[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Int returns the integer field key, or def when it is absent.
func (r Result) Int(key string, def int64) int64 {
	switch v := r.Data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return def
}

// Bool returns a pointer to the boolean field key, nil when absent.
func (r Result) Bool(key string) *bool {
	if b, ok := r.Data[key].(bool); ok {
		return &b
	}
	return nil
}
