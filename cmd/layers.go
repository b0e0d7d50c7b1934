package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/fiberplan/internal/layer"
	"github.com/sells-group/fiberplan/internal/popup"
)

var layersStrict bool

var layersCmd = &cobra.Command{
	Use:   "layers FILE",
	Short: "Show how each folder of a design is classified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := popup.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("strict") {
			opts.Strict = layersStrict
		}

		set, err := layer.Load(cmd.Context(), args[0], opts.Loader)
		if err != nil {
			return err
		}

		formatFolderReports(os.Stdout, set, opts.Required())
		return nil
	},
}

func init() {
	layersCmd.Flags().BoolVar(&layersStrict, "strict", false, "report FAT and POLE as required")
	rootCmd.AddCommand(layersCmd)
}

func formatFolderReports(out io.Writer, set *layer.Set, required []layer.Role) {
	if set.Document != "" {
		_, _ = fmt.Fprintf(out, "Document: %s\n\n", set.Document)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FOLDER\tROLE\tVIA\tSTATUS\tFEATURES\tNO_GEOM\tNOTE")
	_, _ = fmt.Fprintln(w, "------\t----\t---\t------\t--------\t-------\t----")

	for _, f := range set.Folders {
		name := f.Path
		if name == "" {
			name = f.Name
		}
		if name == "" {
			name = "(document)"
		}
		role := string(f.Role)
		if role == "" {
			role = "-"
		}
		via := string(f.Via)
		if via == "" {
			via = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			name, role, via, f.Status, f.Features, f.NoGeometry, folderNote(f))
	}
	_ = w.Flush()

	if missing := set.Missing(required...); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, r := range missing {
			names[i] = string(r)
		}
		_, _ = fmt.Fprintf(out, "\nMissing required layers: %s\n", strings.Join(names, ", "))
	}
}

func folderNote(f layer.FolderReport) string {
	var notes []string
	if f.Business {
		notes = append(notes, "business")
	}
	if f.Status == layer.StatusAmbiguous {
		matched := make([]string, len(f.Matched))
		for i, r := range f.Matched {
			matched[i] = string(r)
		}
		notes = append(notes, "matched "+strings.Join(matched, "+"))
	}
	if f.Err != nil {
		notes = append(notes, f.Err.Error())
	}
	return strings.Join(notes, "; ")
}
