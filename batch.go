package odatakit

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const crlf = "\r\n"

// BatchGroup is one outer part of a batch: either a changeset or a single
// direct request.
type BatchGroup struct {
	Changeset  bool
	Operations []Operation
}

// BatchRequest is the encoded body of a `$batch` POST. Groups records the
// submission layout, which ParseBatchResponse needs to correlate results.
type BatchRequest struct {
	Boundary string
	Body     []byte
	Groups   []BatchGroup
}

// ContentType returns the value for the outer Content-Type header.
func (r *BatchRequest) ContentType() string {
	return ContentTypeMultipart + `; boundary="` + r.Boundary + `"`
}

// Operations returns every operation in submission order.
func (r *BatchRequest) Operations() []Operation {
	var out []Operation
	for _, g := range r.Groups {
		out = append(out, g.Operations...)
	}
	return out
}

// Len returns the number of operations in the batch.
func (r *BatchRequest) Len() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Operations)
	}
	return n
}

type builderConfig struct {
	requestRoot string
}

// BatchOption configures a BatchRequestBuilder.
type BatchOption func(*builderConfig)

// WithRequestRoot makes every inner request line absolute, e.g.
// `POST https://org.example.com/api/data/v9.2/contacts HTTP/1.1`.
// Without it request lines carry the path relative to the service root.
func WithRequestRoot(serviceRoot string) BatchOption {
	return func(c *builderConfig) {
		c.requestRoot = strings.TrimRight(serviceRoot, "/")
	}
}

// BatchRequestBuilder assembles a multipart/mixed `$batch` body.
//
// A builder is single use: after Build every call returns ErrBuilderConsumed.
// It is not safe for concurrent use.
type BatchRequestBuilder struct {
	cfg      builderConfig
	boundary string
	body     bytes.Buffer
	groups   []BatchGroup
	built    bool
}

// NewBatchRequestBuilder returns an empty builder with a fresh batch boundary.
func NewBatchRequestBuilder(opts ...BatchOption) *BatchRequestBuilder {
	b := &BatchRequestBuilder{boundary: "batch_" + uuid.NewString()}
	for _, opt := range opts {
		if opt != nil {
			opt(&b.cfg)
		}
	}
	return b
}

// Boundary returns the outer boundary token.
func (b *BatchRequestBuilder) Boundary() string {
	return b.boundary
}

// AddChangeset appends ops as one transactional changeset. Members get
// Content-IDs 1..len(ops) in order; reference them from later members with
// ContentIDRef. An empty slice adds nothing.
//
// If any operation cannot be mapped the builder is left unchanged.
func (b *BatchRequestBuilder) AddChangeset(ops []Operation) error {
	if b.built {
		return ErrBuilderConsumed
	}
	if len(ops) == 0 {
		return nil
	}

	mapped := make([]mappedRequest, len(ops))
	for i, op := range ops {
		m, err := mapOperation(op)
		if err != nil {
			return fmt.Errorf("changeset member %d: %w", i+1, err)
		}
		mapped[i] = m
	}

	changeset := "changeset_" + uuid.NewString()
	b.writeDelimiter()
	b.writeHeader(HeaderContentType, ContentTypeMultipart+"; boundary="+changeset)
	b.body.WriteString(crlf)
	for i, m := range mapped {
		b.body.WriteString("--" + changeset + crlf)
		b.writeLeaf(m, i+1)
	}
	b.body.WriteString("--" + changeset + "--" + crlf + crlf)

	b.groups = append(b.groups, BatchGroup{
		Changeset:  true,
		Operations: append([]Operation(nil), ops...),
	})
	return nil
}

// AddRequest appends op as a direct, non-transactional part.
func (b *BatchRequestBuilder) AddRequest(op Operation) error {
	if b.built {
		return ErrBuilderConsumed
	}
	m, err := mapOperation(op)
	if err != nil {
		return err
	}
	b.writeDelimiter()
	b.writeLeaf(m, 0)
	b.groups = append(b.groups, BatchGroup{Operations: []Operation{op}})
	return nil
}

// Build closes the batch and returns it. The builder cannot be used again.
func (b *BatchRequestBuilder) Build() (*BatchRequest, error) {
	if b.built {
		return nil, ErrBuilderConsumed
	}
	b.built = true
	b.body.WriteString("--" + b.boundary + "--" + crlf)
	return &BatchRequest{
		Boundary: b.boundary,
		Body:     bytes.Clone(b.body.Bytes()),
		Groups:   b.groups,
	}, nil
}

func (b *BatchRequestBuilder) writeDelimiter() {
	b.body.WriteString("--" + b.boundary + crlf)
}

func (b *BatchRequestBuilder) writeHeader(name, value string) {
	b.body.WriteString(name + ": " + value + crlf)
}

// writeLeaf writes one application/http part. contentID 0 means a direct
// request, which carries no Content-ID.
func (b *BatchRequestBuilder) writeLeaf(m mappedRequest, contentID int) {
	b.writeHeader(HeaderContentType, ContentTypeHTTP)
	b.writeHeader(HeaderTransferEnc, contentTransferBinary)
	if contentID > 0 {
		b.writeHeader(HeaderContentID, strconv.Itoa(contentID))
	}
	b.body.WriteString(crlf)

	b.body.WriteString(m.method + " " + b.target(m.path) + " HTTP/1.1" + crlf)
	for _, h := range m.header {
		b.writeHeader(h.name, h.value)
	}
	b.body.WriteString(crlf)
	b.body.Write(m.body)
	b.body.WriteString(crlf)
}

func (b *BatchRequestBuilder) target(path string) string {
	if b.cfg.requestRoot == "" {
		return path
	}
	return b.cfg.requestRoot + "/" + path
}
