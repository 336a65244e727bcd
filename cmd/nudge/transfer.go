package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/nudge/internal/rpc"
	"github.com/dreamware/nudge/internal/storage"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		p    rpc.ExportParams
		file string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the store as a portable JSON (or YAML) document",
		Long: `Write the live hints as a portable document that "nudge import" reads back.
Secret hints are exported as stored.

Examples:
  nudge export > hints.json
  nudge export --component api --tag ci --file ci-hints.json
  nudge export --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.Export(cmd.Context(), p)
			if err != nil {
				return err
			}

			w := a.out
			if file != "" {
				f, err := os.Create(file)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writePayload(w, a.format, res.Payload); err != nil {
				return err
			}
			if file != "" {
				fmt.Fprintf(a.errOut, "exported %d hints to %s\n", countHints(res.Payload), file)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Component, "component", "", "only this component")
	cmd.Flags().StringSliceVar(&p.Tags, "tag", nil, "only hints carrying any of these tags")
	cmd.Flags().StringVarP(&file, "file", "o", "", "write to this file instead of stdout")
	return cmd
}

// writePayload writes YAML when asked to and JSON otherwise; the text
// format has no separate rendering for a payload.
func writePayload(w io.Writer, format string, p storage.Payload) error {
	if format == "yaml" {
		return writeYAML(w, p)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func countHints(p storage.Payload) int {
	n := 0
	for _, c := range p.Components {
		n += len(c.Hints)
	}
	return n
}

func newImportCommand(a *app) *cobra.Command {
	var mode, component string
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Load hints from an exported document",
		Long: `Load hints from a document written by "nudge export". JSON and YAML are
both accepted; "-" reads standard input.

In merge mode (the default) incoming hints overwrite same-named ones and
everything else is kept. Replace mode first clears the target: the named
--component, or the whole store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			payload, err := toJSON(raw)
			if err != nil {
				return usageError("parse "+args[0], err)
			}
			client, _, err := a.leaderClient()
			if err != nil {
				return err
			}
			res, err := client.Import(cmd.Context(), rpc.ImportParams{
				Payload:   payload,
				Mode:      mode,
				Component: component,
			})
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d hints, skipped %d\n", res.Imported, res.Skipped)
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(storage.ImportMerge), "merge or replace")
	cmd.Flags().StringVar(&component, "component", "", "only import this component")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

// toJSON passes JSON through and converts YAML documents to JSON.
func toJSON(raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if json.Valid(raw) {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("empty document")
	}
	return json.Marshal(doc)
}
