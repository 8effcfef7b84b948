package compiler

import "slices"

// ExactField maps a user-facing exact: field onto a backend field, with an
// optional table rewriting user-facing values.
type ExactField struct {
	Field        string            `json:"field" yaml:"field"`
	ValueAliases map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Context is the read-only configuration a query is compiled against. It is
// passed by value and never modified after NewContext; WithFields returns a
// narrowed copy. A Context may be shared by concurrent compilations.
type Context struct {
	fields       []string
	fieldAliases map[string]string
	rangeFields  map[string]struct{}
	exactFields  map[string]ExactField
}

// NewContext copies its arguments so later changes by the caller cannot leak
// into the context.
func NewContext(fields []string, fieldAliases map[string]string, rangeFields []string, exactFields map[string]ExactField) Context {
	c := Context{
		fields:       slices.Clone(fields),
		fieldAliases: make(map[string]string, len(fieldAliases)),
		rangeFields:  make(map[string]struct{}, len(rangeFields)),
		exactFields:  make(map[string]ExactField, len(exactFields)),
	}
	for k, v := range fieldAliases {
		c.fieldAliases[k] = v
	}
	for _, f := range rangeFields {
		c.rangeFields[f] = struct{}{}
	}
	for k, v := range exactFields {
		aliases := make(map[string]string, len(v.ValueAliases))
		for from, to := range v.ValueAliases {
			aliases[from] = to
		}
		c.exactFields[k] = ExactField{Field: v.Field, ValueAliases: aliases}
	}
	return c
}

// Fields returns a copy of the fields leaf terms are searched in.
func (c Context) Fields() []string {
	return slices.Clone(c.fields)
}

// WithFields returns a copy of c searching only fields.
func (c Context) WithFields(fields ...string) Context {
	c.fields = slices.Clone(fields)
	return c
}

// ResolveField maps a user-facing field name to its backend name. Names
// without an alias pass through unchanged.
func (c Context) ResolveField(field string) string {
	if mapped, ok := c.fieldAliases[field]; ok {
		return mapped
	}
	return field
}

// RangeAllowed reports whether range: queries may target field.
func (c Context) RangeAllowed(field string) bool {
	_, ok := c.rangeFields[field]
	return ok
}

// ResolveExact returns the backend field and value for exact:<field>:<value>.
// Unknown fields pass field and value through unchanged.
func (c Context) ResolveExact(field, value string) (string, string) {
	entry, ok := c.exactFields[field]
	if !ok {
		return field, value
	}
	if mapped, ok := entry.ValueAliases[value]; ok {
		value = mapped
	}
	if entry.Field == "" {
		return field, value
	}
	return entry.Field, value
}
