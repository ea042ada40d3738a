package odatakit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type clientConfig struct {
	apiPath      string
	tokens       TokenSource
	maxBatchSize int
	header       http.Header
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithAPIPath overrides DefaultAPIPath. The service root is baseURL + path.
func WithAPIPath(path string) ClientOption {
	return func(c *clientConfig) {
		c.apiPath = path
	}
}

// WithTokenSource sets the source of the bearer token sent on every request.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *clientConfig) {
		c.tokens = ts
	}
}

// WithBearerToken sends a fixed, pre-fetched token.
func WithBearerToken(token string) ClientOption {
	return WithTokenSource(StaticToken(token))
}

// WithMaxBatchSize caps the number of operations Submit places in one batch.
// Values below 1 are ignored.
func WithMaxBatchSize(n int) ClientOption {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxBatchSize = n
		}
	}
}

// WithHeader adds a header to every request, e.g. `Prefer: odata.maxpagesize=500`.
func WithHeader(name, value string) ClientOption {
	return func(c *clientConfig) {
		c.header.Add(name, value)
	}
}

// Client ties queries, operations and batches to a Transport.
//
// A Client holds no mutable state after construction and is safe for
// concurrent use when its Transport and TokenSource are. It never retries.
type Client struct {
	serviceRoot string
	transport   Transport
	cfg         clientConfig
}

// NewClient returns a client for an instance such as
// `https://org.crm.dynamics.com`.
func NewClient(baseURL string, transport Transport, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, &BuildError{Reason: "base URL is required"}
	}
	if transport == nil {
		return nil, &BuildError{Reason: "transport is required"}
	}

	cfg := clientConfig{
		apiPath:      DefaultAPIPath,
		maxBatchSize: DefaultMaxBatchSize,
		header:       make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	root := baseURL
	if p := strings.Trim(cfg.apiPath, "/"); p != "" {
		root += "/" + p
	}
	return &Client{serviceRoot: root, transport: transport, cfg: cfg}, nil
}

// ServiceRoot returns baseURL joined with the API path.
func (c *Client) ServiceRoot() string {
	return c.serviceRoot
}

// MaxBatchSize returns the per-batch operation cap used by Submit.
func (c *Client) MaxBatchSize() int {
	return c.cfg.maxBatchSize
}

// Query fetches the first page of q.
func (c *Client) Query(ctx context.Context, q Query) (*QueryResponse, error) {
	return c.fetchPage(ctx, &Request{
		Method: http.MethodGet,
		URL:    q.URL(c.serviceRoot),
		Header: make(http.Header),
	})
}

// NextPage fetches the page after prev. It returns (nil, nil) when prev is the
// last page.
func (c *Client) NextPage(ctx context.Context, prev *QueryResponse) (*QueryResponse, error) {
	req, ok := prev.NextRequest()
	if !ok {
		return nil, nil
	}
	return c.fetchPage(ctx, req)
}

// QueryAll follows nextLink until the last page and returns every record.
// Pages are fetched one at a time.
func (c *Client) QueryAll(ctx context.Context, q Query) ([]Record, error) {
	page, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	records := append([]Record(nil), page.Value...)
	for page.HasMore() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err = c.NextPage(ctx, page)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Value...)
	}
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, req *Request) (*QueryResponse, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, newOperationError(resp.StatusCode, resp.Body)
	}
	return ParseQueryResponse(resp.Body)
}

// Execute sends op as a single request. A non-2xx reply is reported through
// OperationResult.Err, not the returned error.
func (c *Client) Execute(ctx context.Context, op Operation) (OperationResult, error) {
	m, err := mapOperation(op)
	if err != nil {
		return OperationResult{}, err
	}
	req := &Request{
		Method: m.method,
		URL:    c.serviceRoot + "/" + m.path,
		Header: m.httpHeader(),
		Body:   m.body,
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return OperationResult{}, err
	}
	return leafResult(op, 0, leafResponse{status: resp.StatusCode, header: resp.Header, body: resp.Body}), nil
}

// NewBatch returns a builder whose request lines are absolute URLs under
// this client's service root.
func (c *Client) NewBatch() *BatchRequestBuilder {
	return NewBatchRequestBuilder(WithRequestRoot(c.serviceRoot))
}

// ExecuteBatch posts batch to `{serviceRoot}/$batch` and decodes the reply.
// A non-2xx reply to the batch as a whole is returned as *OperationError.
func (c *Client) ExecuteBatch(ctx context.Context, batch *BatchRequest) ([]OperationResult, error) {
	if batch == nil {
		return nil, &BuildError{Reason: "nil batch request"}
	}
	if batch.Len() == 0 {
		return nil, nil
	}
	header := make(http.Header)
	header.Set(HeaderContentType, batch.ContentType())
	resp, err := c.send(ctx, &Request{
		Method: http.MethodPost,
		URL:    c.serviceRoot + "/$batch",
		Header: header,
		Body:   batch.Body,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, newOperationError(resp.StatusCode, resp.Body)
	}
	return ParseBatchResponse(resp.Header.Get(HeaderContentType), resp.Body, batch)
}

// Submit writes ops and returns one result per operation in input order.
//
// A single operation is sent directly. Otherwise ops are split into chunks of
// at most MaxBatchSize, each sent as one changeset in its own batch, one
// batch at a time. An error stops the submission; results of batches already
// committed are returned alongside it.
func (c *Client) Submit(ctx context.Context, ops []Operation) ([]OperationResult, error) {
	switch len(ops) {
	case 0:
		return nil, nil
	case 1:
		res, err := c.Execute(ctx, ops[0])
		if err != nil {
			return nil, err
		}
		return []OperationResult{res}, nil
	}

	results := make([]OperationResult, 0, len(ops))
	for start := 0; start < len(ops); start += c.cfg.maxBatchSize {
		end := min(start+c.cfg.maxBatchSize, len(ops))
		builder := c.NewBatch()
		if err := builder.AddChangeset(ops[start:end]); err != nil {
			return results, fmt.Errorf("operations %d-%d: %w", start, end-1, err)
		}
		batch, err := builder.Build()
		if err != nil {
			return results, err
		}
		chunk, err := c.ExecuteBatch(ctx, batch)
		if err != nil {
			return results, fmt.Errorf("operations %d-%d: %w", start, end-1, err)
		}
		results = append(results, chunk...)
	}
	return results, nil
}

// send applies the standard headers and performs one round trip.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(HeaderODataVersion, ODataVersion)
	req.Header.Set(HeaderODataMaxVersion, ODataVersion)
	req.Header.Set(HeaderAccept, ContentTypeJSON)
	for name, values := range c.cfg.header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if c.cfg.tokens != nil {
		token, err := c.cfg.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("odata: acquire token: %w", err)
		}
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	if resp == nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("nil response")}
	}
	return resp, nil
}
