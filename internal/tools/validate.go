package tools

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dvloznov/finance-agent/internal/apperr"
)

var dateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateArgs enforces a Schema's required fields, types, enums and
// numeric bounds. This is the "mandatory at the registry boundary, not
// deferred to handlers" check spec.md §4.6 calls for.
func ValidateArgs(schema Schema, args map[string]any) error {
	for _, p := range schema.Parameters {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: missing required parameter %q", schema.Name, p.Name))
			}
			continue
		}
		if err := validateOne(schema.Name, p, v); err != nil {
			return err
		}
	}
	return nil
}

func validateOne(toolName string, p Parameter, v any) error {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be a string", toolName, p.Name))
		}
		if looksLikeDateParam(p.Name) && !dateRE.MatchString(s) {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be YYYY-MM-DD", toolName, p.Name))
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be one of %v", toolName, p.Name, p.Enum))
		}
	case TypeNumber:
		f, ok := asFloat(v)
		if !ok {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be a number", toolName, p.Name))
		}
		if p.Minimum != nil && f < *p.Minimum {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be >= %v", toolName, p.Name, *p.Minimum))
		}
		if p.Maximum != nil && f > *p.Maximum {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be <= %v", toolName, p.Name, *p.Maximum))
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: parameter %q must be an array", toolName, p.Name))
		}
		if p.Items != nil {
			for _, item := range arr {
				if err := validateOne(toolName, *p.Items, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func looksLikeDateParam(name string) bool {
	switch name {
	case "start_date", "end_date", "start1", "end1", "start2", "end2", "start", "end":
		return true
	default:
		return false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// ValidateDateRange checks start <= end for the common two-date tools,
// beyond what the per-field schema check covers.
func ValidateDateRange(toolName, start, end string) error {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: invalid start date %q", toolName, start))
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: invalid end date %q", toolName, end))
	}
	if s.After(e) {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: start_date must not be after end_date", toolName))
	}
	return nil
}
