package odatakit

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// OperationResult is the outcome of one Operation of a batch.
type OperationResult struct {
	Operation Operation
	// ContentID is the member's Content-ID inside its changeset, 0 for a
	// direct request.
	ContentID  int
	Success    bool
	StatusCode int
	Header     http.Header
	// Data is the returned representation, nil when the body was empty.
	Data Record
	// Err is set when Success is false. Members of a rolled-back changeset
	// share the same *OperationError.
	Err *OperationError
}

// EntityID returns the OData-EntityId header, the canonical URL of a created
// or updated record.
func (r OperationResult) EntityID() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(HeaderODataEntityID)
}

// EntityKey returns the key between the last parentheses of EntityID, e.g.
// `00000000-0000-0000-0000-000000000001` for `.../contacts(00000000-...)`.
func (r OperationResult) EntityKey() string {
	id := r.EntityID()
	open := strings.LastIndexByte(id, '(')
	if open < 0 || !strings.HasSuffix(id, ")") {
		return ""
	}
	return id[open+1 : len(id)-1]
}

// leafResponse is one embedded HTTP response.
type leafResponse struct {
	status int
	header http.Header
	body   []byte
}

// ParseBatchResponse decodes a `$batch` response and correlates it, by
// position, with the request that produced it.
//
// Exactly one result is returned per operation, in submission order. When any
// member of a changeset fails, every member of that changeset is reported as
// failed with the failing member's status and error. Structural problems fail
// the whole call with a *ProtocolError.
func ParseBatchResponse(contentType string, body []byte, req *BatchRequest) ([]OperationResult, error) {
	if req == nil {
		return nil, &BuildError{Reason: "nil batch request"}
	}
	boundary, err := multipartBoundary(contentType)
	if err != nil {
		return nil, err
	}

	results := make([]OperationResult, 0, req.Len())
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	group := 0
	for {
		part, err := reader.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed("read batch part", err)
		}
		if group >= len(req.Groups) {
			return nil, malformed(fmt.Sprintf("response has more than %d parts", len(req.Groups)), nil)
		}
		groupResults, err := parseGroup(part, req.Groups[group])
		if err != nil {
			return nil, err
		}
		results = append(results, groupResults...)
		group++
	}
	if group != len(req.Groups) {
		return nil, malformed(fmt.Sprintf("response has %d parts, request has %d", group, len(req.Groups)), nil)
	}
	return results, nil
}

func multipartBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", malformed("parse content type", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", malformed(fmt.Sprintf("content type %q is not multipart", mediaType), nil)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", malformed("content type has no boundary", nil)
	}
	return boundary, nil
}

func parseGroup(part *multipart.Part, group BatchGroup) ([]OperationResult, error) {
	mediaType, _, err := mime.ParseMediaType(part.Header.Get(HeaderContentType))
	if err != nil {
		return nil, malformed("parse part content type", err)
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		if !group.Changeset {
			return nil, malformed("changeset response for a direct request", nil)
		}
		leaves, err := parseChangeset(part)
		if err != nil {
			return nil, err
		}
		if len(leaves) != len(group.Operations) {
			return nil, malformed(fmt.Sprintf("changeset has %d responses for %d operations", len(leaves), len(group.Operations)), nil)
		}
		return changesetResults(group.Operations, leaves), nil

	case mediaType == ContentTypeHTTP:
		leaf, err := parseLeaf(part)
		if err != nil {
			return nil, err
		}
		if !group.Changeset {
			return []OperationResult{leafResult(group.Operations[0], 0, leaf)}, nil
		}
		// A rolled-back changeset may be answered by one error response.
		if !isSuccess(leaf.status) || len(group.Operations) == 1 {
			leaves := make([]leafResponse, len(group.Operations))
			for i := range leaves {
				leaves[i] = leaf
			}
			return changesetResults(group.Operations, leaves), nil
		}
		return nil, malformed("single success response for a multi-operation changeset", nil)

	default:
		return nil, malformed(fmt.Sprintf("unexpected part content type %q", mediaType), nil)
	}
}

func parseChangeset(part *multipart.Part) ([]leafResponse, error) {
	boundary, err := multipartBoundary(part.Header.Get(HeaderContentType))
	if err != nil {
		return nil, err
	}
	var leaves []leafResponse
	reader := multipart.NewReader(part, boundary)
	for {
		inner, err := reader.NextRawPart()
		if errors.Is(err, io.EOF) {
			return leaves, nil
		}
		if err != nil {
			return nil, malformed("read changeset part", err)
		}
		leaf, err := parseLeaf(inner)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
}

func parseLeaf(part *multipart.Part) (leafResponse, error) {
	raw, err := io.ReadAll(part)
	if err != nil {
		return leafResponse{}, malformed("read response part", err)
	}
	raw = bytes.TrimLeft(raw, "\r\n")
	if len(raw) == 0 {
		return leafResponse{}, malformed("empty response part", nil)
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return leafResponse{}, malformed("parse embedded response", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return leafResponse{}, malformed("read embedded response body", err)
	}
	header := resp.Header
	if id := part.Header.Get(HeaderContentID); id != "" {
		header = header.Clone()
		header.Set(HeaderContentID, id)
	}
	return leafResponse{status: resp.StatusCode, header: header, body: bytes.TrimRight(payload, "\r\n")}, nil
}

func changesetResults(ops []Operation, leaves []leafResponse) []OperationResult {
	results := make([]OperationResult, len(ops))
	failed := -1
	for i, leaf := range leaves {
		if !isSuccess(leaf.status) {
			failed = i
			break
		}
	}
	if failed < 0 {
		for i, op := range ops {
			results[i] = leafResult(op, i+1, leaves[i])
		}
		return results
	}

	cause := leaves[failed]
	opErr := newOperationError(cause.status, cause.body)
	for i, op := range ops {
		results[i] = OperationResult{
			Operation:  op,
			ContentID:  i + 1,
			StatusCode: cause.status,
			Header:     cause.header,
			Err:        opErr,
		}
	}
	return results
}

func leafResult(op Operation, contentID int, leaf leafResponse) OperationResult {
	res := OperationResult{
		Operation:  op,
		ContentID:  contentID,
		StatusCode: leaf.status,
		Header:     leaf.header,
	}
	if !isSuccess(leaf.status) {
		res.Err = newOperationError(leaf.status, leaf.body)
		return res
	}
	res.Success = true
	if data, err := decodeRecord(leaf.body); err == nil {
		res.Data = data
	}
	return res
}
