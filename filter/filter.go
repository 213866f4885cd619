// Package filter implements the filter and search model (C10): a tagged
// union of filter type definitions, pure validation of applied filters
// against them, and a URL-form builder for the validated result.
//
// Grounded closely on original_source's extension/src/validation.rs
// FilterValidator: the same match-based dispatch (validate_against_type)
// expressed as a Go type switch, field for field.
package filter

// Type is the closed set of filter-definition variants (spec.md §3/§4.7).
type Type string

const (
	TypeText        Type = "text"
	TypeSelect      Type = "select"
	TypeMultiSelect Type = "multiselect"
	TypeTriState    Type = "tristate"
	TypeNumberRange Type = "numberRange"
	TypeDateRange   Type = "dateRange"
	TypeBoolean     Type = "boolean"
)

// Option is one selectable value within a Select/MultiSelect/TriState
// definition.
type Option struct {
	Value       string
	Label       string
	Description string
}

// Definition is one filter's declared shape. Exactly one of the
// type-specific fields is populated, selected by Type.
type Definition struct {
	ID       string
	Label    string
	Type     Type
	Required bool

	MaxLength int // Text

	Options []Option // Select, MultiSelect, TriState

	MaxSelections int // MultiSelect

	Min, Max float64 // NumberRange

	DateFormat       string // DateRange, default "YYYY-MM-DD"
	MinDate, MaxDate string // DateRange
}

// Order is an ascending/descending sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// SortOption is one selectable sort field for a search query.
type SortOption struct {
	ID           string
	Name         string
	SupportsAsc  bool
	SupportsDesc bool
	DefaultOrder *Order
}

// TriState is the three-way inclusion state for a TriState option.
type TriState string

const (
	TriStateInclude TriState = "include"
	TriStateExclude TriState = "exclude"
	TriStateNeutral TriState = "neutral"
)

// AppliedValue is the tagged-union value carried by one AppliedFilter.
// Exactly one field is populated, matching the referenced Definition's Type.
type AppliedValue struct {
	Text         *string
	Select       *string
	MultiSelect  []string
	TriState     map[string]TriState
	NumberRange  *NumberRangeValue
	DateRange    *DateRangeValue
	Boolean      *bool
}

// NumberRangeValue is an applied NumberRange filter's endpoints.
type NumberRangeValue struct {
	Min, Max *float64
}

// DateRangeValue is an applied DateRange filter's endpoints, as
// DateFormat-formatted strings.
type DateRangeValue struct {
	Start, End *string
}

// AppliedFilter pairs a filter id with its applied value.
type AppliedFilter struct {
	FilterID string
	Value    AppliedValue
}

// Validated is the result of a successful Validate call: the applied
// filters, already known to conform to their definitions.
type Validated struct {
	Filters []AppliedFilter
}
