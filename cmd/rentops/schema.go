package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperengineering/rentops/internal/workflow"
	"github.com/spf13/cobra"
)

var schemaJSONOutput bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the phase, section and field registry",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSONOutput, "json", false, "Output in JSON format")
}

func runSchema(cmd *cobra.Command, args []string) error {
	if schemaJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"phases": workflow.Phases()})
	}
	return writeSchema(cmd.OutOrStdout(), workflow.Phases())
}

// writeSchema renders the registry as one table per phase.
func writeSchema(out io.Writer, phases []workflow.PhaseDef) error {
	for i, p := range phases {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%d. %s (%s)\n", i+1, p.Title, p.Key)

		w := newTabWriter(out)
		fmt.Fprintln(w, "  SECTION\tKIND\tREQUIRED\tFIELDS")
		for _, s := range p.Sections {
			required := "yes"
			if s.Optional {
				required = "no"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", s.Key, s.Kind, required, sectionInputs(s))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func sectionInputs(s workflow.Section) string {
	var keys []string
	switch s.Kind {
	case workflow.KindChecklist:
		for _, it := range s.Items {
			keys = append(keys, it.Key)
		}
	case workflow.KindInspection:
		return "rooms"
	default:
		for _, f := range s.Fields {
			key := f.Key
			if !f.Required && f.RequiredIf == nil {
				key += "?"
			}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, ", ")
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
