package filter

import "strings"

// Direction is a sort direction for $orderby.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one entry of an $orderby clause.
type SortKey struct {
	Field     string
	Direction Direction
}

// OrderBy is an ordered list of sort keys.
//
// The zero value is an empty clause. Add never mutates the receiver, so a
// clause can be shared once built.
type OrderBy struct {
	keys []SortKey
}

// NewOrderBy returns a clause with the given keys, in order.
func NewOrderBy(keys ...SortKey) OrderBy {
	return OrderBy{keys: append([]SortKey(nil), keys...)}
}

// Add returns a copy of the clause with field appended.
func (o OrderBy) Add(field string, dir Direction) OrderBy {
	if dir == "" {
		dir = Asc
	}
	keys := make([]SortKey, len(o.keys), len(o.keys)+1)
	copy(keys, o.keys)
	return OrderBy{keys: append(keys, SortKey{Field: field, Direction: dir})}
}

func (o OrderBy) Len() int {
	return len(o.keys)
}

func (o OrderBy) IsEmpty() bool {
	return len(o.keys) == 0
}

// Keys returns a copy of the sort keys.
func (o OrderBy) Keys() []SortKey {
	return append([]SortKey(nil), o.keys...)
}

// String renders the clause as `field dir,field dir`.
func (o OrderBy) String() string {
	parts := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		parts = append(parts, k.Field+" "+string(k.Direction))
	}
	return strings.Join(parts, ",")
}
