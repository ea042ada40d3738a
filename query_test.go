package odatakit_test

import (
	"testing"

	"github.com/fy0/odatakit"
	"github.com/fy0/odatakit/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://org.example.com"

func TestQuery_ToURLWithoutOptions(t *testing.T) {
	got := odatakit.NewQuery("contacts").ToURL(testBase)
	assert.Equal(t, testBase+"/api/data/v9.2/contacts", got)

	got = odatakit.NewQuery("contacts").ToURL(testBase + "/")
	assert.Equal(t, testBase+"/api/data/v9.2/contacts", got)
}

func TestQuery_Params(t *testing.T) {
	q := odatakit.NewQuery("contacts").
		Count().
		Top(10).
		Expand("parentcustomerid_account").
		OrderBy("lastname", filter.Asc).
		OrderBy("createdon", filter.Desc).
		Filter(filter.And(filter.Eq("statecode", 0), filter.Contains("firstname", "O'Connor"))).
		Select("firstname", "lastname")

	want := []odatakit.Param{
		{Name: "$select", Value: "firstname,lastname"},
		{Name: "$filter", Value: "(statecode eq 0 and contains(firstname, 'O''Connor'))"},
		{Name: "$orderby", Value: "lastname asc,createdon desc"},
		{Name: "$expand", Value: "parentcustomerid_account"},
		{Name: "$top", Value: "10"},
		{Name: "$count", Value: "true"},
	}
	assert.Equal(t, want, q.Params())
}

func TestQuery_URLEncoding(t *testing.T) {
	tests := []struct {
		name  string
		query odatakit.Query
		want  string
	}{
		{
			name:  "filter spaces become %20",
			query: odatakit.NewQuery("contacts").Filter(filter.Eq("statecode", 0)),
			want:  testBase + "/api/data/v9.2/contacts?$filter=statecode%20eq%200",
		},
		{
			name:  "quotes and commas",
			query: odatakit.NewQuery("contacts").Select("firstname", "lastname").Filter(filter.Eq("lastname", "O'Neil")),
			want:  testBase + "/api/data/v9.2/contacts?$select=firstname%2Clastname&$filter=lastname%20eq%20%27O%27%27Neil%27",
		},
		{
			name:  "top zero is still emitted",
			query: odatakit.NewQuery("accounts").Top(0),
			want:  testBase + "/api/data/v9.2/accounts?$top=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.ToURL(testBase))
		})
	}
}

func TestQuery_IsAValue(t *testing.T) {
	base := odatakit.NewQuery("contacts").Select("firstname")
	withLast := base.Select("lastname")
	withTop := base.Top(5)

	assert.Equal(t, []odatakit.Param{{Name: "$select", Value: "firstname"}}, base.Params())
	assert.Equal(t, []odatakit.Param{{Name: "$select", Value: "firstname,lastname"}}, withLast.Params())
	require.Len(t, withTop.Params(), 2)
	assert.Equal(t, base.URL("root"), base.URL("root"), "URL must be idempotent")
}

func TestQuery_PathAgainstServiceRoot(t *testing.T) {
	q := odatakit.NewQuery("accounts")
	assert.Equal(t, "https://svc/odata/accounts", q.Path("https://svc/odata/"))
	assert.Equal(t, "https://svc/odata/accounts", q.URL("https://svc/odata"))
	assert.Equal(t, "accounts", q.Entity())
	assert.Empty(t, q.RawQuery())
}
