package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"panelcore/pkg/domain"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Apply batch uploads",
}

var importEntitiesCmd = &cobra.Command{
	Use:   "entities <file.tsv>",
	Short: "Import a gene/STR/region upload",
	Long: `Validates the whole file before writing anything. Each affected panel
gets one version bump; rejected files report every invalid row and leave the
panels untouched. Large uploads continue in the background.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importer, _, closer, err := openImporter(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		job, err := importer.ImportEntities(cmd.Context(), f, actingUser())
		if err != nil {
			return describeImportError(err)
		}
		fmt.Printf("import job %s: %s (%d rows)\n", job.ID, job.Status, job.Rows)
		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			if err := importer.Wait(cmd.Context()); err != nil {
				return err
			}
			if final, ok := importer.Job(job.ID); ok {
				fmt.Printf("import job %s: %s\n", final.ID, final.Status)
				if final.Status == "failed" {
					return errors.New(final.Error)
				}
			}
		}
		return nil
	},
}

var importReviewsCmd = &cobra.Command{
	Use:   "reviews <file.tsv>",
	Short: "Import a review upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importer, _, closer, err := openImporter(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		job, err := importer.ImportReviews(cmd.Context(), f, actingUser())
		if err != nil {
			return describeImportError(err)
		}
		fmt.Printf("import job %s: %s (%d rows)\n", job.ID, job.Status, job.Rows)
		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			if err := importer.Wait(cmd.Context()); err != nil {
				return err
			}
			if final, ok := importer.Job(job.ID); ok {
				fmt.Printf("import job %s: %s\n", final.ID, final.Status)
				if final.Status == "failed" {
					return errors.New(final.Error)
				}
			}
		}
		return nil
	},
}

var importGenesCmd = &cobra.Command{
	Use:   "genes <file.json>",
	Short: "Apply a gene catalog revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importer, _, closer, err := openImporter(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		result, err := importer.ImportGeneCollection(cmd.Context(), f, actingUser())
		if err != nil {
			return err
		}
		fmt.Printf("inserted %d, updated %d, deactivated %d, renamed %d\n",
			result.Inserted, result.Updated, result.Deactivated, result.Renamed)
		for _, panelID := range result.BumpedPanels {
			fmt.Printf("bumped panel %s\n", panelID)
		}
		return nil
	},
}

// describeImportError expands row-level diagnostics so a failed upload reports
// every invalid line, not only the first.
func describeImportError(err error) error {
	var invalid domain.ImportValidationError
	if !errors.As(err, &invalid) {
		return err
	}
	for _, row := range invalid.Rows {
		fmt.Fprintln(os.Stderr, row.String())
	}
	return err
}

func init() {
	importEntitiesCmd.Flags().Bool("wait", false, "wait for background jobs to finish")
	importReviewsCmd.Flags().Bool("wait", false, "wait for background jobs to finish")
	importCmd.AddCommand(importEntitiesCmd, importReviewsCmd, importGenesCmd)
	rootCmd.AddCommand(importCmd)
}
