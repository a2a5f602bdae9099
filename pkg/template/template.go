// Package template resolves {{path}} placeholders in node configuration against
// the running input and the execution context.
package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
)

const (
	contextRoot = "context"
	inputRoot   = "input"
)

var (
	exactPlaceholder    = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)
	embeddedPlaceholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
)

// Scope is the data a placeholder path is resolved against.
type Scope struct {
	Input   any
	Context map[string]any
}

// NewScope builds a scope from the running input and the execution context.
func NewScope(input any, executionCtx *models.ExecutionContext) Scope {
	scope := Scope{Input: input}
	if executionCtx != nil {
		scope.Context = executionCtx.AsMap()
	}

	return scope
}

// Resolve walks value and replaces every string that is exactly a {{path}}
// placeholder with the value found at path. Maps and slices are rebuilt with
// resolved leaves; everything else passes through unchanged.
func Resolve(value any, scope Scope) any {
	switch v := value.(type) {
	case string:
		path, ok := placeholderPath(v)
		if !ok {
			return v
		}

		return scope.Lookup(path)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Resolve(item, scope)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, scope)
		}

		return out
	default:
		return v
	}
}

// IsPlaceholder reports whether s is exactly one {{path}} placeholder.
func IsPlaceholder(s string) bool {
	_, ok := placeholderPath(s)

	return ok
}

// Substitute replaces every embedded {{path}} in expr with the JavaScript
// literal of its value. Missing values become undefined.
func Substitute(expr string, scope Scope) string {
	return embeddedPlaceholder.ReplaceAllStringFunc(expr, func(match string) string {
		groups := embeddedPlaceholder.FindStringSubmatch(match)

		return literal(scope.Lookup(groups[1]))
	})
}

// Lookup returns the value at a dot-separated path. The first segment selects
// the execution context ("context"), the running input ("input"), or else a
// node id in the execution context, falling back to a key of the input.
// Missing keys at any depth yield nil.
func (s Scope) Lookup(path string) any {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil
	}

	switch segments[0] {
	case contextRoot:
		return walk(s.Context, segments[1:])
	case inputRoot:
		return walk(s.Input, segments[1:])
	}

	if _, ok := s.Context[segments[0]]; ok {
		return walk(s.Context, segments)
	}

	return walk(s.Input, segments)
}

func placeholderPath(s string) (string, bool) {
	groups := exactPlaceholder.FindStringSubmatch(strings.TrimSpace(s))
	if groups == nil {
		return "", false
	}

	return groups[1], true
}

func splitPath(path string) []string {
	raw := strings.Split(strings.TrimSpace(path), ".")
	segments := make([]string, 0, len(raw))

	for _, segment := range raw {
		segment = strings.TrimSpace(segment)
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	return segments
}

func walk(value any, segments []string) any {
	current := value

	for _, segment := range segments {
		if current == nil {
			return nil
		}

		current = step(current, segment)
	}

	return current
}

func step(value any, segment string) any {
	switch v := value.(type) {
	case map[string]any:
		return v[segment]
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(v) {
			return nil
		}

		return v[index]
	}

	// Named map and slice types (e.g. bson.M, bson.A) from datastore results.
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}

		item := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !item.IsValid() {
			return nil
		}

		return item.Interface()
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= rv.Len() {
			return nil
		}

		return rv.Index(index).Interface()
	default:
		return nil
	}
}

func literal(value any) string {
	if value == nil {
		return "undefined"
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return strconv.Quote(fmt.Sprint(value))
	}

	return string(raw)
}
