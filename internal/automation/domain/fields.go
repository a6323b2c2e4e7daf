package domain

import (
	"errors"
	"strconv"
	"strings"

	leaddomain "crm_pipeline_backend/internal/leads/domain"
)

// BuiltinField is a lead column an UpdateField action may write directly.
type BuiltinField struct {
	Key   string
	parse func(value string, patch *leaddomain.Patch) error
}

func (f BuiltinField) check(value string) error {
	var scratch leaddomain.Patch
	return f.parse(value, &scratch)
}

// Patch converts a rendered value into a lead patch.
func (f BuiltinField) Patch(value string) (leaddomain.Patch, error) {
	var patch leaddomain.Patch
	if err := f.parse(value, &patch); err != nil {
		return leaddomain.Patch{}, err
	}
	return patch, nil
}

var builtinFields = map[string]BuiltinField{
	"estimated_value": {Key: "estimated_value", parse: func(value string, p *leaddomain.Patch) error {
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || v < 0 {
			return errors.New("expected a non-negative integer amount")
		}
		p.EstimatedValue = &v
		return nil
	}},
	"win_probability": {Key: "win_probability", parse: func(value string, p *leaddomain.Patch) error {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			p.WinProbability = leaddomain.Clear[int]()
			return nil
		}
		v, err := strconv.Atoi(trimmed)
		if err != nil || v < 0 || v > 100 {
			return errors.New("expected an integer between 0 and 100")
		}
		p.WinProbability = leaddomain.SetTo(v)
		return nil
	}},
	"notes": {Key: "notes", parse: func(value string, p *leaddomain.Patch) error {
		p.Notes = &value
		return nil
	}},
	"display_name": {Key: "display_name", parse: func(value string, p *leaddomain.Patch) error {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return errors.New("display name must not be empty")
		}
		p.DisplayName = &trimmed
		return nil
	}},
}

// LookupBuiltinField reports whether key names a built-in lead field.
func LookupBuiltinField(key string) (BuiltinField, bool) {
	f, ok := builtinFields[key]
	return f, ok
}
