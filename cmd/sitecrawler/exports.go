package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawler/internal/export"
)

// NewExportsCmd creates the exports command.
func NewExportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports <export-dir> [run-dir]",
		Short: "List exported markdown files with their download tokens",
		Long: `Exports lists the markdown files below a --markdown-export-dir directory
together with their download tokens. A token names a file relative to the
export directory and can only be resolved to files inside it.

Examples:
  # List every exported file
  sitecrawler exports ./export

  # List the files of one run
  sitecrawler exports ./export 20250101-120000-example-com

  # Print the path a token refers to
  sitecrawler exports ./export --resolve cnVuL2luZGV4Lm1k`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runExportsCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output the list as JSON")
	cmd.Flags().String("resolve", "", "Print the file path of a download token")

	return cmd
}

// runExportsCmd executes the exports command.
func runExportsCmd(cmd *cobra.Command, args []string) error {
	root := args[0]
	out := cmd.OutOrStdout()

	token, err := cmd.Flags().GetString("resolve")
	if err != nil {
		return err
	}
	if token != "" {
		path, err := export.ResolveToken(root, token)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	}

	dir := ""
	if len(args) > 1 {
		dir = args[1]
	}
	files, err := export.List(root, dir)
	if err != nil {
		return err
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(files)
	}

	if len(files) == 0 {
		fmt.Fprintf(out, "No exported files found in %s\n", root)
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(out, "%-60s  %8d  %s\n", f.Relative, f.Size, f.Token)
	}
	return nil
}
