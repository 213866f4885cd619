package filter

import (
	"strconv"
	"strings"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// definitionsByID indexes defs for O(1) lookup.
func definitionsByID(defs []Definition) map[string]Definition {
	out := make(map[string]Definition, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

// Validate implements the four-step algorithm from spec.md §4.7,
// mirroring FilterValidator::validate_filter / validate_against_type's
// match-based dispatch as a Go type switch.
func Validate(defs []Definition, applied []AppliedFilter) (Validated, *quelleerr.ValidationError) {
	byID := definitionsByID(defs)

	for _, af := range applied {
		def, ok := byID[af.FilterID]
		if !ok {
			return Validated{}, quelleerr.NewValidationError("UnknownFilter", af.FilterID)
		}

		if err := validateAgainstType(def, af.Value); err != nil {
			return Validated{}, err
		}
		if err := checkRequired(def, af.Value); err != nil {
			return Validated{}, err
		}
	}

	return Validated{Filters: applied}, nil
}

func checkRequired(def Definition, v AppliedValue) *quelleerr.ValidationError {
	if !def.Required {
		return nil
	}
	switch def.Type {
	case TypeText:
		if v.Text == nil || strings.TrimSpace(*v.Text) == "" {
			return quelleerr.NewValidationError("MissingValue", def.ID)
		}
	case TypeMultiSelect:
		if len(v.MultiSelect) == 0 {
			return quelleerr.NewValidationError("MissingValue", def.ID)
		}
	case TypeTriState:
		if len(v.TriState) == 0 {
			return quelleerr.NewValidationError("MissingValue", def.ID)
		}
	}
	return nil
}

func validateAgainstType(def Definition, v AppliedValue) *quelleerr.ValidationError {
	switch def.Type {
	case TypeText:
		if v.Text == nil {
			return typeMismatch(def)
		}
		if def.MaxLength > 0 && len(*v.Text) > def.MaxLength {
			return quelleerr.NewValidationError("TextTooLong", def.ID)
		}
		return nil

	case TypeSelect:
		if v.Select == nil {
			return typeMismatch(def)
		}
		return validateOption(def, *v.Select)

	case TypeMultiSelect:
		if v.MultiSelect == nil {
			return typeMismatch(def)
		}
		if def.MaxSelections > 0 && len(v.MultiSelect) > def.MaxSelections {
			return quelleerr.NewValidationError("TooManySelections", def.ID)
		}
		for _, sel := range v.MultiSelect {
			if err := validateOption(def, sel); err != nil {
				return err
			}
		}
		return nil

	case TypeTriState:
		if v.TriState == nil {
			return typeMismatch(def)
		}
		for optionID := range v.TriState {
			if err := validateOption(def, optionID); err != nil {
				return err
			}
		}
		return nil

	case TypeNumberRange:
		if v.NumberRange == nil {
			return typeMismatch(def)
		}
		return validateNumberRange(def, *v.NumberRange)

	case TypeDateRange:
		if v.DateRange == nil {
			return typeMismatch(def)
		}
		return validateDateRange(def, *v.DateRange)

	case TypeBoolean:
		if v.Boolean == nil {
			return typeMismatch(def)
		}
		return nil

	default:
		return typeMismatch(def)
	}
}

func typeMismatch(def Definition) *quelleerr.ValidationError {
	return quelleerr.NewValidationError("TypeMismatch", string(def.Type))
}

func validateOption(def Definition, value string) *quelleerr.ValidationError {
	for _, opt := range def.Options {
		if opt.Value == value {
			return nil
		}
	}
	return quelleerr.NewValidationError("InvalidOption", value)
}

func validateNumberRange(def Definition, r NumberRangeValue) *quelleerr.ValidationError {
	if r.Min != nil && (*r.Min < def.Min || *r.Min > def.Max) {
		return quelleerr.NewValidationError("OutOfRange", def.ID)
	}
	if r.Max != nil && (*r.Max < def.Min || *r.Max > def.Max) {
		return quelleerr.NewValidationError("OutOfRange", def.ID)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return quelleerr.NewValidationError("InvalidRange", def.ID+": min > max")
	}
	return nil
}

func validateDateRange(def Definition, r DateRangeValue) *quelleerr.ValidationError {
	format := def.DateFormat
	if format == "" {
		format = "YYYY-MM-DD"
	}

	if r.Start != nil && !validDateFormat(*r.Start, format) {
		return quelleerr.NewValidationError("InvalidDateFormat", *r.Start)
	}
	if r.End != nil && !validDateFormat(*r.End, format) {
		return quelleerr.NewValidationError("InvalidDateFormat", *r.End)
	}
	if def.MinDate != "" && r.Start != nil && *r.Start < def.MinDate {
		return quelleerr.NewValidationError("InvalidRange", def.ID+": start before min date")
	}
	if def.MaxDate != "" && r.End != nil && *r.End > def.MaxDate {
		return quelleerr.NewValidationError("InvalidRange", def.ID+": end after max date")
	}
	if r.Start != nil && r.End != nil && *r.Start > *r.End {
		return quelleerr.NewValidationError("InvalidRange", def.ID+": start after end")
	}
	return nil
}

// validDateFormat checks the YYYY-MM-DD shape exactly (spec.md §4.7); any
// other declared format is accepted as long as it is non-empty, matching
// the original's fallback for non-YYYY-MM-DD formats.
func validDateFormat(s, format string) bool {
	if format != "YYYY-MM-DD" {
		return s != ""
	}
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	year := s[:4]
	month := s[5:7]
	day := s[8:10]
	if _, err := strconv.Atoi(year); err != nil {
		return false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return false
	}
	return true
}

// Query is a raw search-query request (spec.md §4.7's complex_search
// parameters), validated by ValidateSearchQuery.
type Query struct {
	Filters []AppliedFilter
	Page    int
	Limit   int
	SortBy  string
}

// ValidateSearchQuery validates query.Filters against defs, then enforces
// page ∈ [1, 10000], limit ∈ [1, 100], and sort_by ∈ sort-option ids.
func ValidateSearchQuery(defs []Definition, sorts []SortOption, query Query) (Validated, *quelleerr.ValidationError) {
	validated, err := Validate(defs, query.Filters)
	if err != nil {
		return Validated{}, err
	}

	if query.Page < 1 || query.Page > 10000 {
		return Validated{}, quelleerr.NewValidationError("InvalidRange", "page")
	}
	if query.Limit < 1 || query.Limit > 100 {
		return Validated{}, quelleerr.NewValidationError("InvalidRange", "limit")
	}
	if query.SortBy != "" {
		found := false
		for _, s := range sorts {
			if s.ID == query.SortBy {
				found = true
				break
			}
		}
		if !found {
			return Validated{}, quelleerr.NewValidationError("UnknownFilter", "sort_by: "+query.SortBy)
		}
	}

	return validated, nil
}
