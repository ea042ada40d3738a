package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fy0/odatakit"
)

// operationSpec is one entry of a batch file:
//
//	[
//	  {"op": "create", "entity": "accounts", "data": {"name": "Contoso"}},
//	  {"op": "create", "entity": "contacts", "data": {"lastname": "Doe"},
//	   "refs": [{"field": "parentcustomerid_account@odata.bind", "content_id": 1}]},
//	  {"op": "update", "entity": "contacts", "id": "<guid>", "data": {"jobtitle": "CTO"}},
//	  {"op": "upsert", "entity": "contacts", "key_field": "emailaddress1", "key_value": "a@b.c", "data": {}},
//	  {"op": "delete", "entity": "contacts", "id": "<guid>"}
//	]
type operationSpec struct {
	Op       string          `json:"op"`
	Entity   string          `json:"entity"`
	ID       string          `json:"id,omitempty"`
	KeyField string          `json:"key_field,omitempty"`
	KeyValue string          `json:"key_value,omitempty"`
	Data     odatakit.Record `json:"data,omitempty"`
	Refs     []refSpec       `json:"refs,omitempty"`
}

type refSpec struct {
	Field     string `json:"field"`
	ContentID int    `json:"content_id,omitempty"`
	Value     string `json:"value,omitempty"`
}

func decodeOperations(r io.Reader) ([]odatakit.Operation, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var specs []operationSpec
	if err := dec.Decode(&specs); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}

	ops := make([]odatakit.Operation, 0, len(specs))
	for i, spec := range specs {
		op, err := spec.operation()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (s operationSpec) operation() (odatakit.Operation, error) {
	if s.Entity == "" {
		return nil, fmt.Errorf("entity is required")
	}
	switch s.Op {
	case "create":
		if len(s.Refs) == 0 {
			return odatakit.Create{Entity: s.Entity, Data: s.Data}, nil
		}
		refs := make([]odatakit.Ref, 0, len(s.Refs))
		for _, r := range s.Refs {
			if r.Field == "" {
				return nil, fmt.Errorf("ref field is required")
			}
			value := r.Value
			if r.ContentID > 0 {
				value = odatakit.ContentIDRef(r.ContentID)
			}
			refs = append(refs, odatakit.Ref{Field: r.Field, Value: value})
		}
		return odatakit.CreateWithRefs{Entity: s.Entity, Data: s.Data, Refs: refs}, nil
	case "update":
		if s.ID == "" {
			return nil, fmt.Errorf("update needs an id")
		}
		return odatakit.Update{Entity: s.Entity, ID: s.ID, Data: s.Data}, nil
	case "delete":
		if s.ID == "" {
			return nil, fmt.Errorf("delete needs an id")
		}
		return odatakit.Delete{Entity: s.Entity, ID: s.ID}, nil
	case "upsert":
		if s.KeyField == "" {
			return nil, fmt.Errorf("upsert needs key_field")
		}
		return odatakit.Upsert{Entity: s.Entity, KeyField: s.KeyField, KeyValue: s.KeyValue, Data: s.Data}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", s.Op)
	}
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "batch <operations.json|->",
		Short: "Submit write operations, grouped into $batch changesets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			ops, err := decodeOperations(bytes.NewReader(data))
			if err != nil {
				return err
			}

			if dryRun {
				b := odatakit.NewBatchRequestBuilder()
				if err := b.AddChangeset(ops); err != nil {
					return err
				}
				req, err := b.Build()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Content-Type: %s\n\n", req.ContentType())
				_, err = out.Write(req.Body)
				return err
			}

			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			results, err := a.client.Submit(cmd.Context(), ops)
			if err != nil {
				return err
			}
			failed := printResults(cmd.OutOrStdout(), results)
			a.logger.Info().Int("operations", len(results)).Int("failed", failed).Msg("batch complete")
			if failed > 0 {
				return fmt.Errorf("%d of %d operations failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the multipart body instead of sending it")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func printResults(w io.Writer, results []odatakit.OperationResult) int {
	failed := 0
	for i, res := range results {
		if res.Success {
			fmt.Fprintf(w, "%d\t%d\tok\t%s\n", i, res.StatusCode, res.EntityID())
			continue
		}
		failed++
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%d\tfailed\t%s\n", i, res.StatusCode, msg)
	}
	return failed
}
