package odatakit

import (
	"context"
	"net/http"
)

// Well-known header values.
const (
	HeaderODataVersion    = "OData-Version"
	HeaderODataMaxVersion = "OData-MaxVersion"
	HeaderPrefer          = "Prefer"
	HeaderIfMatch         = "If-Match"
	HeaderContentType     = "Content-Type"
	HeaderAccept          = "Accept"
	HeaderAuthorization   = "Authorization"
	HeaderODataEntityID   = "OData-EntityId"
	HeaderContentID       = "Content-ID"
	HeaderTransferEnc     = "Content-Transfer-Encoding"

	ODataVersion          = "4.0"
	ContentTypeJSON       = "application/json"
	PreferRepresentation  = "return=representation"
	IfMatchAny            = "*"
	ContentTypeHTTP       = "application/http"
	ContentTypeMultipart  = "multipart/mixed"
	DefaultAPIPath        = "/api/data/v9.2"
	DefaultMaxBatchSize   = 1000
	contentTransferBinary = "binary"
)

// Request is one physical HTTP request handed to the Transport.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the raw result of a round trip.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs a single HTTP round trip.
//
// Implementations own sockets, TLS, timeouts and any retry policy; this
// package never retries. Cancellation is carried by ctx.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// TokenSource supplies a bearer token for the Authorization header.
// Acquisition and refresh happen outside this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed, pre-fetched token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
