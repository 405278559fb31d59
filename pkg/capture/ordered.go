package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// EndpointGroup maps endpoint keys to their latest summary, remembering the
// order in which keys were first seen.
type EndpointGroup struct {
	keys  []string
	items map[string]EndpointSummary
}

// Set inserts or overwrites key. An existing key keeps its position.
func (g *EndpointGroup) Set(key string, s EndpointSummary) {
	if g.items == nil {
		g.items = make(map[string]EndpointSummary)
	}
	if _, ok := g.items[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.items[key] = s
}

// Get returns the summary stored under key.
func (g *EndpointGroup) Get(key string) (EndpointSummary, bool) {
	if g == nil {
		return EndpointSummary{}, false
	}
	s, ok := g.items[key]
	return s, ok
}

// Keys returns the keys in first-seen order.
func (g *EndpointGroup) Keys() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.keys...)
}

// Len returns the number of keys.
func (g *EndpointGroup) Len() int {
	if g == nil {
		return 0
	}
	return len(g.keys)
}

// Clone returns a copy that shares no maps with g.
// Body examples are shared; they are never mutated after extraction.
func (g *EndpointGroup) Clone() *EndpointGroup {
	out := &EndpointGroup{}
	if g == nil {
		return out
	}
	for _, k := range g.keys {
		s := g.items[k]
		s.QueryParams = maps.Clone(s.QueryParams)
		out.Set(k, s)
	}
	return out
}

// MarshalJSON writes the group as an object in first-seen key order.
func (g EndpointGroup) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, k, g.items[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the document's key order.
func (g *EndpointGroup) UnmarshalJSON(data []byte) error {
	*g = EndpointGroup{}
	return decodeObject(data, func(key string, dec *json.Decoder) error {
		var s EndpointSummary
		if err := dec.Decode(&s); err != nil {
			return fmt.Errorf("endpoint %q: %w", key, err)
		}
		g.Set(key, s)
		return nil
	})
}

// CategoryIndex maps categories to endpoint groups in first-seen order.
type CategoryIndex struct {
	order  []Category
	groups map[Category]*EndpointGroup
}

// Group returns the group for cat, or nil when the category is absent.
func (c *CategoryIndex) Group(cat Category) *EndpointGroup {
	return c.groups[cat]
}

// Ensure returns the group for cat, creating it at the end if absent.
func (c *CategoryIndex) Ensure(cat Category) *EndpointGroup {
	if c.groups == nil {
		c.groups = make(map[Category]*EndpointGroup)
	}
	g, ok := c.groups[cat]
	if !ok {
		g = &EndpointGroup{}
		c.groups[cat] = g
		c.order = append(c.order, cat)
	}
	return g
}

// Categories returns the categories in first-seen order.
func (c *CategoryIndex) Categories() []Category {
	return append([]Category(nil), c.order...)
}

// Len returns the number of categories.
func (c *CategoryIndex) Len() int {
	return len(c.order)
}

// Clone returns a deep copy of the index.
func (c *CategoryIndex) Clone() CategoryIndex {
	var out CategoryIndex
	for _, cat := range c.order {
		*out.Ensure(cat) = *c.groups[cat].Clone()
	}
	return out
}

// MarshalJSON writes the index as an object in first-seen category order.
func (c CategoryIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, string(cat), c.groups[cat]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the document's key order.
func (c *CategoryIndex) UnmarshalJSON(data []byte) error {
	*c = CategoryIndex{}
	return decodeObject(data, func(key string, dec *json.Decoder) error {
		var g EndpointGroup
		if err := dec.Decode(&g); err != nil {
			return fmt.Errorf("category %q: %w", key, err)
		}
		*c.Ensure(Category(key)) = g
		return nil
	})
}

// writeMember appends `"key":value` to buf without HTML escaping.
func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := marshalNoEscape(key)
	if err != nil {
		return err
	}
	v, err := marshalNoEscape(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// marshalNoEscape is json.Marshal with HTML escaping turned off.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// decodeObject walks the members of a JSON object in document order.
// JSON null is treated as an empty object.
func decodeObject(data []byte, member func(key string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err := member(key, dec); err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}
