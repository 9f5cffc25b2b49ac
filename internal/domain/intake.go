package domain

// FieldSchema is a JSON-Schema-shaped field definition. The same shape is
// used at the intake root (type "object") and for every nested field.
type FieldSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]*FieldSchema `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
	Items      *FieldSchema            `json:"items,omitempty"`

	Enum    []any  `json:"enum,omitempty"`
	Format  string `json:"format,omitempty"`
	Pattern string `json:"pattern,omitempty"`

	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	MinItems  *int     `json:"minItems,omitempty"`
	MaxItems  *int     `json:"maxItems,omitempty"`

	// File constraints, meaningful only when Type is "file".
	MaxSize      int64    `json:"maxSize,omitempty"`
	AllowedTypes []string `json:"allowedTypes,omitempty"`
	MaxCount     int      `json:"maxCount,omitempty"`
}

// Lookup walks a dot-path (e.g. "address.city") into nested object
// properties and returns the field schema at that path, or nil.
func (s *FieldSchema) Lookup(path string) *FieldSchema {
	if s == nil {
		return nil
	}
	cur := s
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		seg := path[start:i]
		start = i + 1
		if cur.Properties == nil {
			return nil
		}
		next, ok := cur.Properties[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Destination is the external system that receives an accepted submission.
type Destination struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ApprovalGate routes submit into needs_review when its condition over the
// submission fields evaluates true.
type ApprovalGate struct {
	ID        string `json:"id"`
	Condition string `json:"condition"`
	Required  bool   `json:"required,omitempty"`
}

// IntakeDefinition is a named, versioned form definition: a schema plus a
// destination plus optional approval gates. Field hints are rendering-only
// and opaque to the core.
type IntakeDefinition struct {
	ID            string         `json:"id"`
	Version       string         `json:"version"`
	Title         string         `json:"title,omitempty"`
	Schema        *FieldSchema   `json:"schema"`
	Destination   *Destination   `json:"destination"`
	ApprovalGates []ApprovalGate `json:"approvalGates,omitempty"`
	FieldHints    map[string]any `json:"fieldHints,omitempty"`
}
