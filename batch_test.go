package odatakit_test

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/fy0/odatakit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	changesetBoundaryRe = regexp.MustCompile(`boundary=(changeset_[0-9a-f-]+)`)
	contentIDRe         = regexp.MustCompile(`Content-ID: (\d+)\r\n`)
)

func buildBatch(t *testing.T, fill func(b *odatakit.BatchRequestBuilder)) *odatakit.BatchRequest {
	t.Helper()
	b := odatakit.NewBatchRequestBuilder()
	fill(b)
	req, err := b.Build()
	require.NoError(t, err)
	return req
}

func changesetBoundaries(body string) []string {
	var out []string
	for _, m := range changesetBoundaryRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

func TestBatch_ChangesetContentIDs(t *testing.T) {
	req := buildBatch(t, func(b *odatakit.BatchRequestBuilder) {
		require.NoError(t, b.AddChangeset([]odatakit.Operation{
			odatakit.Create{Entity: "contacts", Data: odatakit.Record{"firstname": "Ann"}},
			odatakit.Update{Entity: "contacts", ID: "00000000-0000-0000-0000-000000000001", Data: odatakit.Record{"lastname": "Lee"}},
			odatakit.Delete{Entity: "contacts", ID: "00000000-0000-0000-0000-000000000002"},
		}))
	})
	body := string(req.Body)

	var ids []string
	for _, m := range contentIDRe.FindAllStringSubmatch(body, -1) {
		ids = append(ids, m[1])
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, 3, strings.Count(body, "Content-ID:"))

	cs := changesetBoundaries(body)
	require.Len(t, cs, 1)
	assert.True(t, strings.HasSuffix(body, "--"+cs[0]+"--\r\n\r\n--"+req.Boundary+"--\r\n"), "body ends with %q", body[len(body)-120:])
	assert.Equal(t, `multipart/mixed; boundary="`+req.Boundary+`"`, req.ContentType())
	assert.Equal(t, 3, req.Len())
}

func TestBatch_ExactWireShape(t *testing.T) {
	req := buildBatch(t, func(b *odatakit.BatchRequestBuilder) {
		require.NoError(t, b.AddChangeset([]odatakit.Operation{
			odatakit.Create{Entity: "contacts", Data: odatakit.Record{"firstname": "Ann"}},
			odatakit.Delete{Entity: "contacts", ID: "id1"},
		}))
		require.NoError(t, b.AddRequest(odatakit.Update{Entity: "accounts", ID: "a1", Data: odatakit.Record{"name": "Contoso"}}))
	})
	body := string(req.Body)
	cs := changesetBoundaries(body)
	require.Len(t, cs, 1)

	want := strings.Join([]string{
		"--B",
		"Content-Type: multipart/mixed; boundary=C",
		"",
		"--C",
		"Content-Type: application/http",
		"Content-Transfer-Encoding: binary",
		"Content-ID: 1",
		"",
		"POST contacts HTTP/1.1",
		"Content-Type: application/json",
		"Prefer: return=representation",
		"",
		`{"firstname":"Ann"}`,
		"--C",
		"Content-Type: application/http",
		"Content-Transfer-Encoding: binary",
		"Content-ID: 2",
		"",
		"DELETE contacts(id1) HTTP/1.1",
		"",
		"",
		"--C--",
		"",
		"--B",
		"Content-Type: application/http",
		"Content-Transfer-Encoding: binary",
		"",
		"PATCH accounts(a1) HTTP/1.1",
		"Content-Type: application/json",
		"Prefer: return=representation",
		"If-Match: *",
		"",
		`{"name":"Contoso"}`,
		"--B--",
		"",
	}, "\r\n")

	got := strings.ReplaceAll(body, req.Boundary, "B")
	got = strings.ReplaceAll(got, cs[0], "C")
	assert.Equal(t, want, got)
	assert.NotContains(t, strings.ReplaceAll(body, "\r\n", ""), "\n", "every line break must be CRLF")
}

func TestBatch_BoundariesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		req := buildBatch(t, func(b *odatakit.BatchRequestBuilder) {
			require.NoError(t, b.AddChangeset([]odatakit.Operation{odatakit.Delete{Entity: "contacts", ID: "1"}}))
		})
		cs := changesetBoundaries(string(req.Body))
		require.Len(t, cs, 1)
		for _, token := range []string{req.Boundary, cs[0]} {
			require.False(t, seen[token], "boundary %s reused", token)
			seen[token] = true
		}
	}
}

func TestBatch_EmptyChangesetIsNoop(t *testing.T) {
	op := odatakit.Delete{Entity: "contacts", ID: "1"}

	with := odatakit.NewBatchRequestBuilder()
	require.NoError(t, with.AddRequest(op))
	require.NoError(t, with.AddChangeset(nil))
	require.NoError(t, with.AddChangeset([]odatakit.Operation{}))
	a, err := with.Build()
	require.NoError(t, err)

	without := odatakit.NewBatchRequestBuilder()
	require.NoError(t, without.AddRequest(op))
	b, err := without.Build()
	require.NoError(t, err)

	assert.Equal(t,
		strings.ReplaceAll(string(b.Body), b.Boundary, "B"),
		strings.ReplaceAll(string(a.Body), a.Boundary, "B"))
	assert.Len(t, a.Groups, 1)
}

func TestBatch_BuilderIsSingleUse(t *testing.T) {
	b := odatakit.NewBatchRequestBuilder()
	_, err := b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	assert.ErrorIs(t, err, odatakit.ErrBuilderConsumed)
	assert.ErrorIs(t, b.AddRequest(odatakit.Delete{Entity: "contacts", ID: "1"}), odatakit.ErrBuilderConsumed)
	assert.ErrorIs(t, b.AddChangeset([]odatakit.Operation{odatakit.Delete{Entity: "contacts", ID: "1"}}), odatakit.ErrBuilderConsumed)

	var buildErr *odatakit.BuildError
	assert.True(t, errors.As(err, &buildErr))
}

func TestBatch_CreateWithRefs(t *testing.T) {
	data := odatakit.Record{"lastname": "Doe", "middlename": nil}
	req := buildBatch(t, func(b *odatakit.BatchRequestBuilder) {
		require.NoError(t, b.AddChangeset([]odatakit.Operation{
			odatakit.Create{Entity: "accounts", Data: odatakit.Record{"name": "Contoso"}},
			odatakit.CreateWithRefs{
				Entity: "contacts",
				Data:   data,
				Refs:   []odatakit.Ref{odatakit.BindRef("parentcustomerid_account", 1)},
			},
		}))
	})

	assert.Contains(t, string(req.Body), `{"lastname":"Doe","middlename":null,"parentcustomerid_account@odata.bind":"$1"}`)
	assert.Equal(t, odatakit.Record{"lastname": "Doe", "middlename": nil}, data, "caller's payload must not be mutated")
	assert.Equal(t, "$3", odatakit.ContentIDRef(3))
}

func TestBatch_UpsertAddressing(t *testing.T) {
	req := buildBatch(t, func(b *odatakit.BatchRequestBuilder) {
		require.NoError(t, b.AddRequest(odatakit.Upsert{
			Entity:   "contacts",
			KeyField: "emailaddress1",
			KeyValue: "o'neil@example.com",
			Data:     odatakit.Record{"firstname": "Pat"},
		}))
	})
	body := string(req.Body)
	assert.Contains(t, body, "PATCH contacts(emailaddress1='o''neil@example.com') HTTP/1.1\r\n")
	assert.NotContains(t, body, "If-Match")
}

func TestBatch_RequestRoot(t *testing.T) {
	b := odatakit.NewBatchRequestBuilder(odatakit.WithRequestRoot(testBase + "/api/data/v9.2/"))
	require.NoError(t, b.AddRequest(odatakit.Create{Entity: "contacts"}))
	req, err := b.Build()
	require.NoError(t, err)

	body := string(req.Body)
	assert.Contains(t, body, "POST "+testBase+"/api/data/v9.2/contacts HTTP/1.1\r\n")
	assert.Contains(t, body, "\r\n\r\n{}\r\n")
}

func TestBatch_InvalidOperationLeavesBuilderUnchanged(t *testing.T) {
	b := odatakit.NewBatchRequestBuilder()
	err := b.AddChangeset([]odatakit.Operation{
		odatakit.Delete{Entity: "contacts", ID: "1"},
		nil,
	})
	var buildErr *odatakit.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Contains(t, err.Error(), "changeset member 2")

	req, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "--"+req.Boundary+"--\r\n", string(req.Body))
	assert.Empty(t, req.Groups)
}
