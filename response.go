package odatakit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fy0/odatakit/filter"
)

const (
	annotationCount    = "@odata.count"
	annotationNextLink = "@odata.nextLink"
	annotationContext  = "@odata.context"
)

// QueryResponse is one page of a collection read.
type QueryResponse struct {
	Value []Record
	// Count is set when the query asked for $count.
	Count *int64
	// NextLink is the opaque continuation URL, empty on the last page.
	NextLink string
	Context  string
}

// ParseQueryResponse decodes a collection envelope
// `{"value": [...], "@odata.count": n, "@odata.nextLink": "..."}`.
func ParseQueryResponse(body []byte) (*QueryResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var envelope map[string]json.RawMessage
	if err := dec.Decode(&envelope); err != nil {
		return nil, malformed("decode query response", err)
	}
	if envelope == nil {
		return nil, malformed("query response is not an object", nil)
	}

	rawValue, ok := envelope["value"]
	if !ok {
		return nil, malformed(`query response has no "value"`, nil)
	}
	resp := &QueryResponse{}
	if err := decodeInto(rawValue, &resp.Value); err != nil {
		return nil, malformed(`decode "value"`, err)
	}
	if resp.Value == nil {
		resp.Value = []Record{}
	}

	if raw, ok := envelope[annotationCount]; ok {
		var n json.Number
		if err := decodeInto(raw, &n); err != nil {
			return nil, malformed("decode "+annotationCount, err)
		}
		count, err := n.Int64()
		if err != nil {
			return nil, malformed("decode "+annotationCount, err)
		}
		resp.Count = &count
	}
	if raw, ok := envelope[annotationNextLink]; ok {
		if err := decodeInto(raw, &resp.NextLink); err != nil {
			return nil, malformed("decode "+annotationNextLink, err)
		}
	}
	if raw, ok := envelope[annotationContext]; ok {
		if err := decodeInto(raw, &resp.Context); err != nil {
			return nil, malformed("decode "+annotationContext, err)
		}
	}
	return resp, nil
}

func decodeInto(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// HasMore reports whether the server announced another page.
func (r *QueryResponse) HasMore() bool {
	return r != nil && r.NextLink != ""
}

// NextRequest returns the GET for the following page. The URL is NextLink
// verbatim: no query options are re-derived or re-applied.
func (r *QueryResponse) NextRequest() (*Request, bool) {
	if !r.HasMore() {
		return nil, false
	}
	return &Request{
		Method: http.MethodGet,
		URL:    r.NextLink,
		Header: make(http.Header),
	}, true
}

// Len returns the number of records on this page.
func (r *QueryResponse) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Value)
}

// Where returns the records on this page matching expr.
func (r *QueryResponse) Where(expr filter.Expr) ([]Record, error) {
	if r == nil {
		return nil, nil
	}
	out := make([]Record, 0, len(r.Value))
	for i, rec := range r.Value {
		ok, err := filter.Evaluate(expr, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
