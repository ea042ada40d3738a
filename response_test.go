package odatakit_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/fy0/odatakit"
	"github.com/fy0/odatakit/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryResponse(t *testing.T) {
	next := "https://org.example.com/api/data/v9.2/contacts?$select=firstname&$skiptoken=%3Ccookie%20pagenumber=%222%22%20/%3E"
	body := `{
		"@odata.context": "https://org.example.com/api/data/v9.2/$metadata#contacts(firstname)",
		"@odata.count": 42,
		"value": [
			{"contactid": "c1", "firstname": "Ann", "statecode": 0},
			{"contactid": "c2", "firstname": "Bob", "statecode": 1, "middlename": null}
		],
		"@odata.nextLink": "` + next + `"
	}`

	resp, err := odatakit.ParseQueryResponse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Len())
	require.NotNil(t, resp.Count)
	assert.Equal(t, int64(42), *resp.Count)
	assert.True(t, resp.HasMore())
	assert.Equal(t, "https://org.example.com/api/data/v9.2/$metadata#contacts(firstname)", resp.Context)

	mid, present := resp.Value[1]["middlename"]
	assert.True(t, present, "explicit null must stay distinguishable from an absent key")
	assert.Nil(t, mid)
	_, present = resp.Value[0]["middlename"]
	assert.False(t, present)
	assert.Equal(t, json.Number("0"), resp.Value[0]["statecode"])

	req, ok := resp.NextRequest()
	require.True(t, ok)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, next, req.URL, "continuation must use nextLink verbatim")
	assert.Nil(t, req.Body)
}

func TestParseQueryResponse_LastPage(t *testing.T) {
	resp, err := odatakit.ParseQueryResponse([]byte(`{"value":[]}`))
	require.NoError(t, err)
	assert.False(t, resp.HasMore())
	assert.Nil(t, resp.Count)
	assert.NotNil(t, resp.Value)
	assert.Equal(t, 0, resp.Len())

	req, ok := resp.NextRequest()
	assert.False(t, ok)
	assert.Nil(t, req)
}

func TestParseQueryResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing value", body: `{"@odata.nextLink":"X"}`},
		{name: "value not an array", body: `{"value":{"a":1}}`},
		{name: "invalid json", body: `{"value":[`},
		{name: "not an object", body: `[1,2]`},
		{name: "null document", body: `null`},
		{name: "empty body", body: ``},
		{name: "fractional count", body: `{"value":[],"@odata.count":1.5}`},
		{name: "non-string nextLink", body: `{"value":[],"@odata.nextLink":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := odatakit.ParseQueryResponse([]byte(tt.body))
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, odatakit.ErrMalformed), "got %v", err)
		})
	}
}

func TestQueryResponse_Where(t *testing.T) {
	resp, err := odatakit.ParseQueryResponse([]byte(`{"value":[
		{"firstname":"Ann","statecode":0,"address1":{"city":"Oslo"}},
		{"firstname":"Bob","statecode":1,"address1":{"city":"Bergen"}},
		{"firstname":"Ava","statecode":0}
	]}`))
	require.NoError(t, err)

	active, err := resp.Where(filter.And(filter.Eq("statecode", 0), filter.StartsWith("firstname", "A")))
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Ava", active[1]["firstname"])

	inOslo, err := resp.Where(filter.Eq("address1/city", "Oslo"))
	require.NoError(t, err)
	require.Len(t, inOslo, 1)
	assert.Equal(t, "Ann", inOslo[0]["firstname"])

	_, err = resp.Where(filter.RawExpr("year(createdon) eq 2024"))
	assert.Error(t, err)
}
