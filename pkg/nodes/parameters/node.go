// Package parameters provides the node that collects and validates request parameters.
package parameters

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
)

// Violation is one failed validation rule.
type Violation struct {
	Source  models.ParameterSourceKind `json:"source"`
	Field   string                     `json:"field"`
	Rule    string                     `json:"rule"`
	Message string                     `json:"message"`
}

// Violations is the details payload of a PARAMETER_PROCESSING_FAILED error.
type Violations struct {
	Missing    []string    `json:"MISSING_PARAMS,omitempty"`
	Invalid    []Violation `json:"VALIDATION_FAILED,omitempty"`
	Unexpected []string    `json:"UNEXPECTED_PARAMS,omitempty"`
}

func (v *Violations) empty() bool {
	return len(v.Missing) == 0 && len(v.Invalid) == 0 && len(v.Unexpected) == 0
}

// ParametersNode merges values from the declared request sections. Every
// problem across every source is collected before failing.
type ParametersNode struct {
	validate *validator.Validate
}

// NewParametersNode creates a parameters node handler.
func NewParametersNode(validate *validator.Validate) *ParametersNode {
	return &ParametersNode{validate: validate}
}

func (n *ParametersNode) Execute(
	_ context.Context,
	node *models.Node,
	_ any,
	requestCtx *models.RequestContext,
	_ *models.ExecutionContext,
	_ *models.Workflow,
) (any, error) {
	data, err := protocol.DecodeData[models.ParametersData](n.validate, node)
	if err != nil {
		return nil, err
	}

	if requestCtx == nil {
		requestCtx = &models.RequestContext{}
	}

	var (
		violations Violations
		declared   = make(map[string]bool)
		merged     = make(map[string]any)
	)

	for _, source := range data.Sources {
		collected := collect(source, requestCtx, declared, &violations)

		for k, v := range collected {
			merged[k] = v
		}
	}

	if data.StrictMode {
		for k := range merged {
			if !declared[k] {
				violations.Unexpected = append(violations.Unexpected, k)
			}
		}
	}

	if violations.empty() {
		return merged, nil
	}

	sort.Strings(violations.Missing)
	sort.Strings(violations.Unexpected)

	return nil, models.NewError(
		models.ErrParameterProcessingFailed,
		"parameter processing failed: %d missing, %d invalid, %d unexpected",
		len(violations.Missing), len(violations.Invalid), len(violations.Unexpected),
	).WithDetails(&violations)
}

func (n *ParametersNode) Validate(node *models.Node) error {
	data, err := protocol.DecodeData[models.ParametersData](n.validate, node)
	if err != nil {
		return err
	}

	for _, source := range data.Sources {
		for field, rule := range source.Validation {
			if rule.Regex == "" {
				continue
			}

			if _, err := regexp.Compile(rule.Regex); err != nil {
				return models.NewError(models.ErrValidationFailed, "invalid regex for %s.%s: %v", source.From, field, err)
			}
		}
	}

	return nil
}

// collect reads one source, applies its mapping and checks its rules. Keys
// the source declares are added to declared.
func collect(
	source models.ParameterSource,
	requestCtx *models.RequestContext,
	declared map[string]bool,
	violations *Violations,
) map[string]any {
	fold := source.From == models.SourceHeaders && !source.CaseSensitive
	caser := cases.Fold()

	key := func(k string) string {
		if fold {
			return caser.String(k)
		}

		return k
	}

	raw := make(map[string]any)
	for k, v := range sourceValues(source.From, requestCtx) {
		raw[key(k)] = v
	}

	// declared names win over the folded header spelling
	canonical := make(map[string]string)
	for _, name := range source.Required {
		canonical[key(name)] = name
	}

	for name := range source.Validation {
		canonical[key(name)] = name
	}

	collected := make(map[string]any)
	mappedFrom := make(map[string]bool)

	for target, from := range source.Mapping {
		declared[target] = true

		if v, ok := raw[key(from)]; ok {
			collected[target] = v
			mappedFrom[key(from)] = true
		}
	}

	for k, v := range raw {
		if mappedFrom[k] {
			continue
		}

		name := k
		if c, ok := canonical[k]; ok {
			name = c
		}

		if _, ok := collected[name]; !ok {
			collected[name] = v
		}
	}

	for _, name := range source.Required {
		declared[name] = true

		if _, ok := collected[name]; !ok {
			violations.Missing = append(violations.Missing, name)
		}
	}

	fields := make([]string, 0, len(source.Validation))
	for name := range source.Validation {
		fields = append(fields, name)
	}

	sort.Strings(fields)

	for _, name := range fields {
		declared[name] = true

		value, ok := collected[name]
		if !ok {
			continue
		}

		for _, problem := range check(value, source.Validation[name]) {
			problem.Source = source.From
			problem.Field = name
			violations.Invalid = append(violations.Invalid, problem)
		}
	}

	return collected
}

func sourceValues(from models.ParameterSourceKind, requestCtx *models.RequestContext) map[string]any {
	out := make(map[string]any)

	switch from {
	case models.SourceParams:
		out["tenant"] = requestCtx.Params.Tenant
		out["projectId"] = requestCtx.Params.ProjectID

		if requestCtx.Params.Path != "" {
			out["path"] = requestCtx.Params.Path
		}
	case models.SourceBody:
		if body, ok := requestCtx.Body.(map[string]any); ok {
			for k, v := range body {
				out[k] = v
			}
		}
	case models.SourceQuery:
		for k, v := range requestCtx.Query {
			out[k] = v
		}
	case models.SourceHeaders:
		for k, values := range requestCtx.Headers {
			if len(values) > 0 {
				out[k] = values[0]
			}
		}
	}

	return out
}

func check(value any, rule models.ValidationRule) []Violation {
	var problems []Violation

	if rule.Regex != "" {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			problems = append(problems, Violation{Rule: "regex", Message: fmt.Sprintf("invalid pattern: %v", err)})
		} else if !re.MatchString(fmt.Sprint(value)) {
			problems = append(problems, Violation{Rule: "regex", Message: fmt.Sprintf("does not match %s", rule.Regex)})
		}
	}

	if rule.Min != nil || rule.Max != nil {
		number, ok := toNumber(value)

		switch {
		case !ok:
			problems = append(problems, Violation{Rule: "type", Message: "must be a number"})
		case rule.Min != nil && number < *rule.Min:
			problems = append(problems, Violation{Rule: "min", Message: fmt.Sprintf("must be >= %v", *rule.Min)})
		case rule.Max != nil && number > *rule.Max:
			problems = append(problems, Violation{Rule: "max", Message: fmt.Sprintf("must be <= %v", *rule.Max)})
		}
	}

	if len(rule.Enum) > 0 && !inEnum(value, rule.Enum) {
		problems = append(problems, Violation{Rule: "enum", Message: fmt.Sprintf("must be one of %v", rule.Enum)})
	}

	return problems
}

// toNumber accepts JSON numbers and numeric strings, since query and header
// values always arrive as strings.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func inEnum(value any, enum []any) bool {
	for _, allowed := range enum {
		if fmt.Sprint(allowed) == fmt.Sprint(value) {
			return true
		}
	}

	return false
}
