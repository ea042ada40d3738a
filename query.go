package odatakit

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/fy0/odatakit/filter"
)

// Query option names.
const (
	ParamSelect  = "$select"
	ParamFilter  = "$filter"
	ParamOrderBy = "$orderby"
	ParamExpand  = "$expand"
	ParamTop     = "$top"
	ParamCount   = "$count"
)

// Param is one query-string parameter, value unencoded.
type Param struct {
	Name  string
	Value string
}

// Query describes a read request against one entity set.
//
// Query is a value type: every setter returns a modified copy, so a base
// query can be built once and reused from several goroutines.
type Query struct {
	entity  string
	sel     []string
	filter  filter.Expr
	orderBy filter.OrderBy
	expand  []string
	top     int
	hasTop  bool
	count   bool
}

// NewQuery starts a query against the given entity set, e.g. "contacts".
func NewQuery(entity string) Query {
	return Query{entity: entity}
}

func (q Query) Entity() string {
	return q.entity
}

// Select restricts the returned properties.
func (q Query) Select(fields ...string) Query {
	q.sel = append(append([]string(nil), q.sel...), fields...)
	return q
}

// Filter sets the $filter expression, replacing any previous one.
func (q Query) Filter(expr filter.Expr) Query {
	q.filter = expr
	return q
}

// OrderBy appends a sort key.
func (q Query) OrderBy(field string, dir filter.Direction) Query {
	q.orderBy = q.orderBy.Add(field, dir)
	return q
}

// OrderByClause replaces the sort keys.
func (q Query) OrderByClause(o filter.OrderBy) Query {
	q.orderBy = o
	return q
}

// Expand adds navigation properties to $expand.
func (q Query) Expand(nav ...string) Query {
	q.expand = append(append([]string(nil), q.expand...), nav...)
	return q
}

// Top limits the first page. It is never reapplied to follow-up pages.
func (q Query) Top(n int) Query {
	q.top = n
	q.hasTop = true
	return q
}

// Count requests @odata.count in the response.
func (q Query) Count() Query {
	q.count = true
	return q
}

// Params returns the set options in their canonical order.
func (q Query) Params() []Param {
	params := make([]Param, 0, 6)
	if len(q.sel) > 0 {
		params = append(params, Param{Name: ParamSelect, Value: strings.Join(q.sel, ",")})
	}
	if q.filter != nil {
		params = append(params, Param{Name: ParamFilter, Value: filter.Render(q.filter)})
	}
	if !q.orderBy.IsEmpty() {
		params = append(params, Param{Name: ParamOrderBy, Value: q.orderBy.String()})
	}
	if len(q.expand) > 0 {
		params = append(params, Param{Name: ParamExpand, Value: strings.Join(q.expand, ",")})
	}
	if q.hasTop {
		params = append(params, Param{Name: ParamTop, Value: strconv.Itoa(q.top)})
	}
	if q.count {
		params = append(params, Param{Name: ParamCount, Value: "true"})
	}
	return params
}

// Path returns `{serviceRoot}/{entity}`.
func (q Query) Path(serviceRoot string) string {
	return strings.TrimRight(serviceRoot, "/") + "/" + q.entity
}

// RawQuery encodes Params into a query string without the leading `?`.
func (q Query) RawQuery() string {
	params := q.Params()
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.Name+"="+escapeParam(p.Value))
	}
	return strings.Join(parts, "&")
}

// URL returns the request URL relative to a service root such as
// `https://org.crm.dynamics.com/api/data/v9.2`.
func (q Query) URL(serviceRoot string) string {
	u := q.Path(serviceRoot)
	if raw := q.RawQuery(); raw != "" {
		u += "?" + raw
	}
	return u
}

// ToURL returns the request URL for an instance base URL, using DefaultAPIPath.
func (q Query) ToURL(base string) string {
	return q.URL(strings.TrimRight(base, "/") + DefaultAPIPath)
}

// escapeParam percent-encodes a parameter value as one opaque string.
// Spaces become %20 rather than `+`, which some OData servers reject.
func escapeParam(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
