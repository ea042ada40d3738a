package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/spf13/cobra"

	"github.com/fy0/odatakit"
	"github.com/fy0/odatakit/filter"
)

type queryFlags struct {
	sel     []string
	expand  []string
	orderBy []string
	fields  []string
	vars    []string
	filter  string
	where   string
	top     int
	count   bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&f.sel, "select", nil, "properties to return")
	flags.StringSliceVar(&f.expand, "expand", nil, "navigation properties to expand")
	flags.StringArrayVar(&f.orderBy, "orderby", nil, `sort key, e.g. "createdon desc" (repeatable)`)
	flags.StringVar(&f.filter, "filter", "", "raw OData $filter text")
	flags.StringVar(&f.where, "where", "", `CEL filter, e.g. 'statecode == 0 && firstname.startsWith("Jo")'`)
	flags.StringArrayVar(&f.fields, "field", nil, "declare a --where field as name:type[:property] (string|int|double|bool|guid|datetime)")
	flags.StringArrayVar(&f.vars, "var", nil, "bind a --where string variable as name=value")
	flags.IntVar(&f.top, "top", -1, "limit the first page")
	flags.BoolVar(&f.count, "count", false, "request @odata.count")
}

func (f *queryFlags) build(entity string) (odatakit.Query, error) {
	q := odatakit.NewQuery(entity)
	if len(f.sel) > 0 {
		q = q.Select(f.sel...)
	}
	if len(f.expand) > 0 {
		q = q.Expand(f.expand...)
	}
	for _, key := range f.orderBy {
		field, dir, err := parseSortKey(key)
		if err != nil {
			return odatakit.Query{}, err
		}
		q = q.OrderBy(field, dir)
	}

	var parts []filter.Expr
	if strings.TrimSpace(f.filter) != "" {
		parts = append(parts, filter.RawExpr(f.filter))
	}
	if strings.TrimSpace(f.where) != "" {
		expr, err := compileWhere(f.where, f.fields, f.vars)
		if err != nil {
			return odatakit.Query{}, err
		}
		parts = append(parts, expr)
	}
	switch len(parts) {
	case 1:
		q = q.Filter(parts[0])
	case 2:
		q = q.Filter(filter.And(parts...))
	}

	if f.top >= 0 {
		q = q.Top(f.top)
	}
	if f.count {
		q = q.Count()
	}
	return q, nil
}

func parseSortKey(key string) (string, filter.Direction, error) {
	fields := strings.Fields(key)
	switch len(fields) {
	case 1:
		return fields[0], filter.Asc, nil
	case 2:
		switch strings.ToLower(fields[1]) {
		case "asc":
			return fields[0], filter.Asc, nil
		case "desc":
			return fields[0], filter.Desc, nil
		}
	}
	return "", "", fmt.Errorf("invalid --orderby %q, want \"field [asc|desc]\"", key)
}

// compileWhere builds an ad hoc schema from --field declarations and lowers
// the CEL source into an OData filter.
func compileWhere(source string, fieldSpecs, varSpecs []string) (filter.Expr, error) {
	schema := filter.Schema{Name: "cli", Fields: map[string]*filter.Field{}}
	for _, spec := range fieldSpecs {
		field, err := parseFieldSpec(spec)
		if err != nil {
			return nil, err
		}
		schema.Fields[field.Name] = field
	}

	bindings := filter.Bindings{}
	var envOpts []cel.EnvOption
	for _, spec := range varSpecs {
		name, value, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", spec)
		}
		bindings[name] = value
		envOpts = append(envOpts, cel.Variable(name, cel.StringType))
	}

	engine, err := filter.NewEngine(schema, filter.WithEnvOptions(envOpts...))
	if err != nil {
		return nil, err
	}
	expr, err := engine.CompileExpr(source, bindings)
	if err != nil {
		return nil, fmt.Errorf("--where: %w", err)
	}
	return expr, nil
}

func parseFieldSpec(spec string) (*filter.Field, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return nil, fmt.Errorf("invalid --field %q, want name:type[:property]", spec)
	}
	ft := filter.FieldType(parts[1])
	switch ft {
	case filter.FieldTypeString, filter.FieldTypeInt, filter.FieldTypeDouble,
		filter.FieldTypeBool, filter.FieldTypeGuid, filter.FieldTypeDateTime:
	default:
		return nil, fmt.Errorf("invalid --field %q: unknown type %q", spec, parts[1])
	}
	field := &filter.Field{
		Name:             parts[0],
		Type:             ft,
		SupportsContains: ft == filter.FieldTypeString,
	}
	if len(parts) == 3 {
		field.Property = parts[2]
	}
	return field, nil
}

func newURLCmd() *cobra.Command {
	flags := &queryFlags{}
	var base string
	cmd := &cobra.Command{
		Use:   "url <entity>",
		Short: "Print the request URL for a query without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.build(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), q.ToURL(base))
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&base, "base", "https://org.crm.dynamics.com", "instance base URL")
	return cmd
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	flags := &queryFlags{}
	var all bool
	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "Read records, one JSON document per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.build(args[0])
			if err != nil {
				return err
			}
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if all {
				records, err := a.client.QueryAll(ctx, q)
				if err != nil {
					return err
				}
				a.logger.Info().Str("entity", q.Entity()).Int("records", len(records)).Msg("query complete")
				return writeRecords(cmd.OutOrStdout(), records)
			}

			page, err := a.client.Query(ctx, q)
			if err != nil {
				return err
			}
			event := a.logger.Info().Str("entity", q.Entity()).Int("records", page.Len()).Bool("has_more", page.HasMore())
			if page.Count != nil {
				event = event.Int64("count", *page.Count)
			}
			event.Msg("query complete")
			return writeRecords(cmd.OutOrStdout(), page.Value)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "follow nextLink through every page")
	return cmd
}

func writeRecords(w io.Writer, records []odatakit.Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
