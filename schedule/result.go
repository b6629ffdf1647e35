package schedule

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// NotFoundMarker is printed in text reports for categories without a date.
const NotFoundMarker = "Not found"

// Entry is one category and its next collection, if any was found.
type Entry struct {
	Category string
	Date     *CollectionDate
}

// Result maps every requested category, in request order, to an optional date.
type Result struct {
	Entries []Entry
}

// Categories returns the category labels in order.
func (r *Result) Categories() []string {
	categories := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		categories[i] = e.Category
	}
	return categories
}

// Lookup returns the date found for category.
func (r *Result) Lookup(category string) (CollectionDate, bool) {
	for _, e := range r.Entries {
		if e.Category == category && e.Date != nil {
			return *e.Date, true
		}
	}
	return CollectionDate{}, false
}

// Found counts the categories that have a date.
func (r *Result) Found() int {
	n := 0
	for _, e := range r.Entries {
		if e.Date != nil {
			n++
		}
	}
	return n
}

// Empty reports whether no category has a date.
func (r *Result) Empty() bool {
	return r.Found() == 0
}

// WriteText writes one "<Category>: <date>" line per entry.
func (r *Result) WriteText(w io.Writer) error {
	for _, e := range r.Entries {
		value := NotFoundMarker
		if e.Date != nil {
			value = e.Date.String()
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", e.Category, value); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the result as an object whose keys keep category order.
// Missing dates are written as null.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Category)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if e.Date == nil {
			buf.WriteString("null")
			continue
		}
		value, err := json.Marshal(e.Date.String())
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object written by MarshalJSON, keeping key order.
func (r *Result) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schedule: expected JSON object, got %v", tok)
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		category, ok := tok.(string)
		if !ok {
			return fmt.Errorf("schedule: unexpected key %v", tok)
		}

		var value *string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("schedule: value for %q: %w", category, err)
		}

		entry := Entry{Category: category}
		if value != nil {
			date, err := ParseCollectionDate(*value)
			if err != nil {
				return err
			}
			entry.Date = &date
		}
		entries = append(entries, entry)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	r.Entries = entries
	return nil
}

// MarshalYAML returns an ordered mapping; missing dates become null.
func (r Result) MarshalYAML() (interface{}, error) {
	out := make(yaml.MapSlice, 0, len(r.Entries))
	for _, e := range r.Entries {
		item := yaml.MapItem{Key: e.Category}
		if e.Date != nil {
			item.Value = e.Date.String()
		}
		out = append(out, item)
	}
	return out, nil
}

// MarshalXML writes
//
//	<schedule>
//	  <collection category="General Waste">Wed 21/1/2026</collection>
//	  <collection category="Recycling" found="false"></collection>
//	</schedule>
func (r Result) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start = xml.StartElement{Name: xml.Name{Local: "schedule"}}
	if err := e.EncodeToken(start); err != nil {
		return err
	}

	for _, entry := range r.Entries {
		el := xml.StartElement{
			Name: xml.Name{Local: "collection"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "category"}, Value: entry.Category}},
		}
		if entry.Date == nil {
			el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: "found"}, Value: "false"})
			if err := e.EncodeToken(el); err != nil {
				return err
			}
			if err := e.EncodeToken(el.End()); err != nil {
				return err
			}
			continue
		}
		if err := e.EncodeElement(entry.Date.String(), el); err != nil {
			return err
		}
	}

	if err := e.EncodeToken(start.End()); err != nil {
		return err
	}
	return e.Flush()
}
