package filter_test

import (
	"strings"
	"testing"

	"github.com/fy0/odatakit/filter"
	"github.com/google/cel-go/cel"
)

func TestNamedPredicate(t *testing.T) {
	engine, err := filter.NewEngine(contactSchema(),
		filter.WithEnvOptions(cel.Variable("days", cel.IntType)),
		filter.WithNamedPredicate("last_x_days", filter.NamedPredicate{
			Template: "Microsoft.Dynamics.CRM.LastXDays(PropertyName='{{createdon}}',PropertyValue=?)",
		}),
		filter.WithNamedPredicate("under", filter.NamedPredicate{
			Template: "Microsoft.Dynamics.CRM.Under(PropertyName='{{account}}',PropertyValue=?)",
		}),
		filter.WithNamedPredicate("", filter.NamedPredicate{Template: "ignored"}),
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := engine.CompileString(`odata("last_x_days", [days]) && statecode == 0`, filter.Bindings{"days": 7})
	if err != nil {
		t.Fatal(err)
	}
	want := "(Microsoft.Dynamics.CRM.LastXDays(PropertyName='createdon',PropertyValue=7) and statecode eq 0)"
	if got != want {
		t.Fatalf("unexpected filter.\nwant: %s\ngot:  %s", want, got)
	}

	got, err = engine.CompileString(`odata("under", ["root'1"])`, nil)
	if err != nil {
		t.Fatal(err)
	}
	want = "Microsoft.Dynamics.CRM.Under(PropertyName='_parentcustomerid_value',PropertyValue='root''1')"
	if got != want {
		t.Fatalf("unexpected filter.\nwant: %s\ngot:  %s", want, got)
	}
}

func TestNamedPredicateErrors(t *testing.T) {
	engine, err := filter.NewEngine(contactSchema(),
		filter.WithNamedPredicate("bad_field", filter.NamedPredicate{Template: "x eq {{nope}}"}),
		filter.WithNamedPredicate("two_args", filter.NamedPredicate{Template: "a eq ? and b eq ?"}),
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		source  string
		wantErr string
	}{
		{source: `odata("missing")`, wantErr: "unknown odata predicate"},
		{source: `odata("bad_field")`, wantErr: "unknown field"},
		{source: `odata("two_args", [1])`, wantErr: "more '?' than args"},
		{source: `odata("two_args", [1, 2, 3])`, wantErr: "fewer '?' than args"},
	}

	for _, tc := range tests {
		_, err := engine.CompileExpr(tc.source, nil)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.source, tc.wantErr, err)
		}
	}
}

func TestNamedPredicateDisabled(t *testing.T) {
	engine, err := filter.NewEngine(contactSchema())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Compile(`odata("x")`); err == nil {
		t.Fatal("expected error when no predicates are registered")
	}
}
