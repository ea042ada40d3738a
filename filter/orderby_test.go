package filter_test

import (
	"testing"

	"github.com/fy0/odatakit/filter"
)

func TestOrderByString(t *testing.T) {
	var o filter.OrderBy
	if !o.IsEmpty() || o.String() != "" {
		t.Fatalf("zero value should be empty, got %q", o.String())
	}

	o = o.Add("lastname", filter.Asc).Add("createdon", filter.Desc)
	if got, want := o.String(), "lastname asc,createdon desc"; got != want {
		t.Fatalf("unexpected orderby.\nwant: %s\ngot:  %s", want, got)
	}
	if o.Len() != 2 {
		t.Fatalf("unexpected len: %d", o.Len())
	}
}

func TestOrderByAddDoesNotMutate(t *testing.T) {
	base := filter.NewOrderBy(filter.SortKey{Field: "name", Direction: filter.Asc})
	a := base.Add("createdon", filter.Desc)
	b := base.Add("modifiedon", "")

	if base.String() != "name asc" {
		t.Fatalf("base mutated: %s", base.String())
	}
	if a.String() != "name asc,createdon desc" {
		t.Fatalf("unexpected a: %s", a.String())
	}
	if b.String() != "name asc,modifiedon asc" {
		t.Fatalf("unexpected b: %s", b.String())
	}

	keys := a.Keys()
	keys[0].Field = "changed"
	if a.String() != "name asc,createdon desc" {
		t.Fatalf("Keys() must return a copy, got %s", a.String())
	}
}
