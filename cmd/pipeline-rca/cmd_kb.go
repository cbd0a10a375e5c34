package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/pipeline-rca/internal/format"
	"github.com/miradorstack/pipeline-rca/internal/models"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the solution knowledge base",
}

var kbCategory string

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List solution templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()
		items := a.svc.Catalog().All()
		if kbCategory != "" {
			items = a.svc.Catalog().ByCategory(kbCategory)
		}
		return emit(cmd.OutOrStdout(), items, func(m format.Mode) string { return format.Solutions(items, m) })
	},
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search solution templates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()
		resp, err := a.svc.KnowledgeBase(cmd.Context(), models.KnowledgeBaseRequest{Action: models.KBActionSearch, Query: args[0]})
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), resp, func(m format.Mode) string { return format.Solutions(resp.Solutions, m) })
	},
}

var kbExportOut string

var kbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge base as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()
		data, err := a.svc.Catalog().Export()
		if err != nil {
			return err
		}
		w, err := stdoutOrFile(kbExportOut)
		if err != nil {
			return err
		}
		defer w.Close()
		_, err = w.Write(append(data, '\n'))
		return err
	},
}

func init() {
	kbListCmd.Flags().StringVar(&kbCategory, "category", "", "only list templates of this category")
	kbExportCmd.Flags().StringVar(&kbExportOut, "out", "-", "output file, - for stdout")
	kbCmd.AddCommand(kbListCmd, kbSearchCmd, kbExportCmd)
}
