package odatakit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fy0/odatakit/filter"
)

// Operation is one write intent. It is sealed: the concrete types are
// Create, CreateWithRefs, Update, Delete and Upsert.
type Operation interface {
	isOperation()
	// EntitySet returns the target entity set, e.g. "contacts".
	EntitySet() string
}

// Create inserts a new record.
type Create struct {
	Entity string
	Data   Record
}

// CreateWithRefs inserts a record whose payload references records created
// earlier in the same changeset, via their Content-ID.
type CreateWithRefs struct {
	Entity string
	Data   Record
	Refs   []Ref
}

// Ref is merged into a CreateWithRefs payload as Field: Value.
type Ref struct {
	Field string
	Value string
}

// Update patches an existing record addressed by key.
type Update struct {
	Entity string
	ID     string
	Data   Record
}

// Delete removes a record addressed by key.
type Delete struct {
	Entity string
	ID     string
}

// Upsert patches or creates a record addressed by an alternate key.
type Upsert struct {
	Entity   string
	KeyField string
	KeyValue string
	Data     Record
}

func (Create) isOperation()         {}
func (CreateWithRefs) isOperation() {}
func (Update) isOperation()         {}
func (Delete) isOperation()         {}
func (Upsert) isOperation()         {}

func (o Create) EntitySet() string         { return o.Entity }
func (o CreateWithRefs) EntitySet() string { return o.Entity }
func (o Update) EntitySet() string         { return o.Entity }
func (o Delete) EntitySet() string         { return o.Entity }
func (o Upsert) EntitySet() string         { return o.Entity }

// ContentIDRef returns the reference string for the changeset member with
// the given 1-based Content-ID.
func ContentIDRef(contentID int) string {
	return "$" + strconv.Itoa(contentID)
}

// BindRef builds a Ref that binds navigation property nav to the changeset
// member with the given Content-ID: `{nav}@odata.bind: $n`.
func BindRef(nav string, contentID int) Ref {
	return Ref{Field: nav + "@odata.bind", Value: ContentIDRef(contentID)}
}

// headerField keeps header order stable on the wire.
type headerField struct {
	name  string
	value string
}

// mappedRequest is the HTTP shape of one Operation, path relative to the
// service root.
type mappedRequest struct {
	method string
	path   string
	header []headerField
	body   []byte
}

func (m mappedRequest) httpHeader() http.Header {
	h := make(http.Header, len(m.header))
	for _, f := range m.header {
		h.Set(f.name, f.value)
	}
	return h
}

func writeHeaders() []headerField {
	return []headerField{
		{name: HeaderContentType, value: ContentTypeJSON},
		{name: HeaderPrefer, value: PreferRepresentation},
	}
}

func mapOperation(op Operation) (mappedRequest, error) {
	switch o := op.(type) {
	case Create:
		return mapWrite(http.MethodPost, o.Entity, writeHeaders(), o.Data)
	case *Create:
		return mapOperation(*o)
	case CreateWithRefs:
		return mapWrite(http.MethodPost, o.Entity, writeHeaders(), mergeRefs(o.Data, o.Refs))
	case *CreateWithRefs:
		return mapOperation(*o)
	case Update:
		header := append(writeHeaders(), headerField{name: HeaderIfMatch, value: IfMatchAny})
		return mapWrite(http.MethodPatch, entityKeyPath(o.Entity, o.ID), header, o.Data)
	case *Update:
		return mapOperation(*o)
	case Delete:
		return mappedRequest{method: http.MethodDelete, path: entityKeyPath(o.Entity, o.ID)}, nil
	case *Delete:
		return mapOperation(*o)
	case Upsert:
		path := fmt.Sprintf("%s(%s='%s')", o.Entity, o.KeyField, filter.EscapeString(o.KeyValue))
		return mapWrite(http.MethodPatch, path, writeHeaders(), o.Data)
	case *Upsert:
		return mapOperation(*o)
	case nil:
		return mappedRequest{}, &BuildError{Reason: "nil operation"}
	default:
		return mappedRequest{}, &BuildError{Reason: fmt.Sprintf("unsupported operation %T", op)}
	}
}

func mapWrite(method, path string, header []headerField, data Record) (mappedRequest, error) {
	body, err := encodeRecord(data)
	if err != nil {
		return mappedRequest{}, &BuildError{Reason: fmt.Sprintf("encode %s %s payload: %v", method, path, err)}
	}
	return mappedRequest{method: method, path: path, header: header, body: body}, nil
}

func entityKeyPath(entity, id string) string {
	return entity + "(" + id + ")"
}
