package filter

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// json writes "&x" keys and search text without HTML escaping.
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// tagKey splits a "#x" / "&x" key into its tag name.
func tagKey(key string, prefix byte) (string, bool) {
	if len(key) < 2 || key[0] != prefix {
		return "", false
	}
	name := key[1:]
	if utf8.RuneCountInString(name) != 1 {
		return "", false
	}
	return name, true
}

// UnmarshalJSON decodes the wire form of a filter.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode filter: %w", err)
	}

	*f = Filter{}
	for key, val := range raw {
		var err error
		switch key {
		case "ids":
			err = json.Unmarshal(val, &f.IDs)
		case "kinds":
			err = json.Unmarshal(val, &f.Kinds)
		case "authors":
			err = json.Unmarshal(val, &f.Authors)
		case "since":
			err = json.Unmarshal(val, &f.Since)
		case "until":
			err = json.Unmarshal(val, &f.Until)
		case "search":
			err = json.Unmarshal(val, &f.Search)
		case "limit":
			err = json.Unmarshal(val, &f.Limit)
		case "order":
			err = json.Unmarshal(val, &f.Order)
		default:
			if name, ok := tagKey(key, '#'); ok {
				err = decodeTagValues(val, name, &f.Tags)
			} else if name, ok := tagKey(key, '&'); ok {
				err = decodeTagValues(val, name, &f.AndTags)
			}
		}
		if err != nil {
			return fmt.Errorf("decode filter field %q: %w", key, err)
		}
	}
	return nil
}

func decodeTagValues(val jsoniter.RawMessage, name string, into *TagMap) error {
	var values []string
	if err := json.Unmarshal(val, &values); err != nil {
		return err
	}
	if values == nil {
		return nil
	}
	if *into == nil {
		*into = TagMap{}
	}
	(*into)[name] = values
	return nil
}

// MarshalJSON encodes the wire form. Keys come out sorted.
func (f Filter) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if f.IDs != nil {
		out["ids"] = f.IDs
	}
	if f.Kinds != nil {
		out["kinds"] = f.Kinds
	}
	if f.Authors != nil {
		out["authors"] = f.Authors
	}
	if f.Since != nil {
		out["since"] = *f.Since
	}
	if f.Until != nil {
		out["until"] = *f.Until
	}
	if f.Search != "" {
		out["search"] = f.Search
	}
	if f.Limit != 0 {
		out["limit"] = f.Limit
	}
	if f.Order != OrderDefault {
		out["order"] = f.Order
	}
	for name, values := range f.Tags {
		out["#"+name] = values
	}
	for name, values := range f.AndTags {
		out["&"+name] = values
	}
	return json.Marshal(out)
}

func (f Filter) String() string {
	b, err := f.MarshalJSON()
	if err != nil {
		return "<invalid filter>"
	}
	return string(b)
}

// Parse decodes and validates a single filter object.
func Parse(data []byte) (Filter, error) {
	var f Filter
	if err := json.Unmarshal(data, &f); err != nil {
		return Filter{}, err
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// ParseFilters accepts either one filter object or an array of them.
func ParseFilters(data []byte) ([]Filter, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		f, err := Parse(trimmed)
		if err != nil {
			return nil, err
		}
		return []Filter{f}, nil
	}

	var filters []Filter
	if err := json.Unmarshal(trimmed, &filters); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	for i := range filters {
		if err := filters[i].Validate(); err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return filters, nil
}
