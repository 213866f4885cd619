package filter

import (
	"fmt"
	"net/url"
	"strconv"
)

// BuildForm implements the field-mapping strategy from spec.md §4.7:
// single field for Text/Select/Boolean, a min/max pair for NumberRange,
// include/exclude arrays for TriState, and suffixed defaults for
// DateRange's start/end.
func BuildForm(validated Validated) url.Values {
	form := url.Values{}
	for _, af := range validated.Filters {
		id := af.FilterID
		v := af.Value
		switch {
		case v.Text != nil:
			form.Set(id, *v.Text)
		case v.Select != nil:
			form.Set(id, *v.Select)
		case v.Boolean != nil:
			form.Set(id, strconv.FormatBool(*v.Boolean))
		case v.MultiSelect != nil:
			for _, s := range v.MultiSelect {
				form.Add(id, s)
			}
		case v.TriState != nil:
			for optionID, state := range v.TriState {
				switch state {
				case TriStateInclude:
					form.Add(id+"_include", optionID)
				case TriStateExclude:
					form.Add(id+"_exclude", optionID)
				}
			}
		case v.NumberRange != nil:
			if v.NumberRange.Min != nil {
				form.Set(id+"_min", formatFloat(*v.NumberRange.Min))
			}
			if v.NumberRange.Max != nil {
				form.Set(id+"_max", formatFloat(*v.NumberRange.Max))
			}
		case v.DateRange != nil:
			if v.DateRange.Start != nil {
				form.Set(id+"_start", *v.DateRange.Start)
			}
			if v.DateRange.End != nil {
				form.Set(id+"_end", *v.DateRange.End)
			}
		}
	}
	return form
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
