package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func textDef() Definition {
	return Definition{ID: "title", Type: TypeText, MaxLength: 5}
}

func TestValidate_UnknownFilter(t *testing.T) {
	_, err := Validate(nil, []AppliedFilter{{FilterID: "nope", Value: AppliedValue{Text: strPtr("x")}}})
	require.NotNil(t, err)
	assert.Equal(t, "UnknownFilter", err.Sub)
}

func TestValidate_TypeMismatch(t *testing.T) {
	defs := []Definition{textDef()}
	v := true
	_, err := Validate(defs, []AppliedFilter{{FilterID: "title", Value: AppliedValue{Boolean: &v}}})
	require.NotNil(t, err)
	assert.Equal(t, "TypeMismatch", err.Sub)
}

func TestValidate_TextTooLong(t *testing.T) {
	defs := []Definition{textDef()}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "title", Value: AppliedValue{Text: strPtr("toolong")}}})
	require.NotNil(t, err)
	assert.Equal(t, "TextTooLong", err.Sub)
}

func TestValidate_RequiredMissing(t *testing.T) {
	defs := []Definition{{ID: "title", Type: TypeText, Required: true}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "title", Value: AppliedValue{Text: strPtr("  ")}}})
	require.NotNil(t, err)
	assert.Equal(t, "MissingValue", err.Sub)
}

func TestValidate_SelectInvalidOption(t *testing.T) {
	defs := []Definition{{ID: "status", Type: TypeSelect, Options: []Option{{Value: "ongoing"}, {Value: "complete"}}}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "status", Value: AppliedValue{Select: strPtr("dropped")}}})
	require.NotNil(t, err)
	assert.Equal(t, "InvalidOption", err.Sub)
}

func TestValidate_MultiSelectTooMany(t *testing.T) {
	defs := []Definition{{ID: "tags", Type: TypeMultiSelect, MaxSelections: 1, Options: []Option{{Value: "a"}, {Value: "b"}}}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "tags", Value: AppliedValue{MultiSelect: []string{"a", "b"}}}})
	require.NotNil(t, err)
	assert.Equal(t, "TooManySelections", err.Sub)
}

func TestValidate_NumberRangeOutOfRange(t *testing.T) {
	defs := []Definition{{ID: "chapters", Type: TypeNumberRange, Min: 0, Max: 100}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "chapters", Value: AppliedValue{NumberRange: &NumberRangeValue{Min: f64Ptr(200)}}}})
	require.NotNil(t, err)
	assert.Equal(t, "OutOfRange", err.Sub)
}

func TestValidate_NumberRangeMinGreaterThanMax(t *testing.T) {
	defs := []Definition{{ID: "chapters", Type: TypeNumberRange, Min: 0, Max: 100}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "chapters", Value: AppliedValue{NumberRange: &NumberRangeValue{Min: f64Ptr(50), Max: f64Ptr(10)}}}})
	require.NotNil(t, err)
	assert.Equal(t, "InvalidRange", err.Sub)
}

func TestValidate_DateRangeInvalidFormat(t *testing.T) {
	defs := []Definition{{ID: "published", Type: TypeDateRange, DateFormat: "YYYY-MM-DD"}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "published", Value: AppliedValue{DateRange: &DateRangeValue{Start: strPtr("2024-13-01")}}}})
	require.NotNil(t, err)
	assert.Equal(t, "InvalidDateFormat", err.Sub)
}

func TestValidate_DateRangeStartAfterEnd(t *testing.T) {
	defs := []Definition{{ID: "published", Type: TypeDateRange, DateFormat: "YYYY-MM-DD"}}
	_, err := Validate(defs, []AppliedFilter{{FilterID: "published", Value: AppliedValue{
		DateRange: &DateRangeValue{Start: strPtr("2024-06-01"), End: strPtr("2024-01-01")},
	}}})
	require.NotNil(t, err)
	assert.Equal(t, "InvalidRange", err.Sub)
}

func TestValidate_Valid(t *testing.T) {
	defs := []Definition{textDef()}
	validated, err := Validate(defs, []AppliedFilter{{FilterID: "title", Value: AppliedValue{Text: strPtr("ok")}}})
	require.Nil(t, err)
	assert.Len(t, validated.Filters, 1)
}

func TestValidateSearchQuery_BoundsChecks(t *testing.T) {
	_, err := ValidateSearchQuery(nil, nil, Query{Page: 0, Limit: 10})
	require.NotNil(t, err)

	_, err = ValidateSearchQuery(nil, nil, Query{Page: 1, Limit: 1000})
	require.NotNil(t, err)

	_, err = ValidateSearchQuery(nil, []SortOption{{ID: "name"}}, Query{Page: 1, Limit: 10, SortBy: "bogus"})
	require.NotNil(t, err)

	validated, err := ValidateSearchQuery(nil, []SortOption{{ID: "name"}}, Query{Page: 1, Limit: 10, SortBy: "name"})
	require.Nil(t, err)
	assert.Empty(t, validated.Filters)
}

func TestBuildForm_MapsEachVariant(t *testing.T) {
	validated := Validated{Filters: []AppliedFilter{
		{FilterID: "title", Value: AppliedValue{Text: strPtr("hi")}},
		{FilterID: "tags", Value: AppliedValue{MultiSelect: []string{"a", "b"}}},
		{FilterID: "status", Value: AppliedValue{TriState: map[string]TriState{"done": TriStateInclude, "skip": TriStateExclude}}},
		{FilterID: "chapters", Value: AppliedValue{NumberRange: &NumberRangeValue{Min: f64Ptr(1), Max: f64Ptr(10)}}},
		{FilterID: "published", Value: AppliedValue{DateRange: &DateRangeValue{Start: strPtr("2024-01-01")}}},
	}}
	form := BuildForm(validated)
	assert.Equal(t, "hi", form.Get("title"))
	assert.ElementsMatch(t, []string{"a", "b"}, form["tags"])
	assert.Equal(t, []string{"done"}, form["status_include"])
	assert.Equal(t, []string{"skip"}, form["status_exclude"])
	assert.Equal(t, "1", form.Get("chapters_min"))
	assert.Equal(t, "10", form.Get("chapters_max"))
	assert.Equal(t, "2024-01-01", form.Get("published_start"))
}
