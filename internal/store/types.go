package store

import "encoding/json"

// Row is a raw store row: an opaque row identifier plus a typed
// property bag keyed by column label.
type Row struct {
	ID         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
}

// Property is one typed cell. Exactly one of the value fields is set,
// matching Type.
type Property struct {
	Type        string        `json:"type,omitempty"`
	Title       []RichText    `json:"title,omitempty"`
	RichText    []RichText    `json:"rich_text,omitempty"`
	Select      *SelectOption `json:"select,omitempty"`
	Date        *DateValue    `json:"date,omitempty"`
	Number      *float64      `json:"number,omitempty"`
	Email       string        `json:"email,omitempty"`
	PhoneNumber string        `json:"phone_number,omitempty"`
	URL         string        `json:"url,omitempty"`
}

type RichText struct {
	PlainText string `json:"plain_text,omitempty"`
	Text      *Text  `json:"text,omitempty"`
}

type Text struct {
	Content string `json:"content"`
}

type SelectOption struct {
	Name string `json:"name"`
}

type DateValue struct {
	Start string `json:"start"` // YYYY-MM-DD
}

// Filter is the store's query filter. Either And is set (conjunction)
// or Property plus one condition.
type Filter struct {
	And      []Filter      `json:"and,omitempty"`
	Property string        `json:"property,omitempty"`
	Select   *SelectFilter `json:"select,omitempty"`
	Date     *DateFilter   `json:"date,omitempty"`
}

type SelectFilter struct {
	Equals string `json:"equals,omitempty"`
}

type DateFilter struct {
	OnOrAfter  string `json:"on_or_after,omitempty"`
	OnOrBefore string `json:"on_or_before,omitempty"`
}

// IsZero reports whether the filter is empty (query everything).
func (f Filter) IsZero() bool {
	return len(f.And) == 0 && f.Property == ""
}

type queryRequest struct {
	Filter      json.RawMessage `json:"filter,omitempty"`
	StartCursor string          `json:"start_cursor,omitempty"`
	PageSize    int             `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []Row  `json:"results"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

type writeRequest struct {
	Properties map[string]Property `json:"properties"`
}

// Property constructors used when writing back to the store.

func textProperty(content string) Property {
	return Property{RichText: []RichText{{Text: &Text{Content: content}}}}
}

func titleProperty(content string) Property {
	return Property{Title: []RichText{{Text: &Text{Content: content}}}}
}

func selectProperty(name string) Property {
	return Property{Select: &SelectOption{Name: name}}
}

func dateProperty(day string) Property {
	return Property{Date: &DateValue{Start: day}}
}

func numberProperty(v float64) Property {
	return Property{Number: &v}
}

func emailProperty(addr string) Property {
	return Property{Email: addr}
}
