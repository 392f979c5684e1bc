package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"panelcore/internal/core"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Create and deploy releases",
}

var releaseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a release pinning the panels' active snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		name, _ := cmd.Flags().GetString("name")
		comment, _ := cmd.Flags().GetString("comment")
		panelIDs, _ := cmd.Flags().GetStringSlice("panel")
		promoteIDs, _ := cmd.Flags().GetStringSlice("promote")

		var panels []core.ReleasePanelInput
		for _, id := range panelIDs {
			panels = append(panels, core.ReleasePanelInput{PanelID: id})
		}
		for _, id := range promoteIDs {
			panels = append(panels, core.ReleasePanelInput{PanelID: id, Promote: true})
		}
		release, err := svc.CreateRelease(cmd.Context(), name, comment, panels, actingUser())
		if err != nil {
			return err
		}
		fmt.Printf("created release %s (%s) with %d panels\n", release.ID, release.Name, len(release.Panels))
		return nil
	},
}

var releaseDeployCmd = &cobra.Command{
	Use:   "deploy <release-id>",
	Short: "Deploy a release: bump, sign off, and promote its panels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		release, err := svc.DeployRelease(cmd.Context(), args[0], actingUser())
		if err != nil {
			return err
		}
		elapsed := release.Deployment.Elapsed(time.Now().UTC())
		fmt.Printf("deployed release %s (%s) in %s\n", release.ID, release.Name, elapsed.Round(time.Millisecond))
		return nil
	},
}

var releaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases and their deployment state",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPANELS\tDEPLOYED")
		for _, r := range svc.ListReleases(cmd.Context()) {
			deployed := "no"
			if r.Deployment != nil {
				switch {
				case r.Deployment.End != nil:
					deployed = r.Deployment.End.Format(time.RFC3339)
				case r.Deployment.Start != nil:
					deployed = "in progress"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Name, len(r.Panels), deployed)
		}
		return w.Flush()
	},
}

func init() {
	releaseCreateCmd.Flags().String("name", "", "release name")
	releaseCreateCmd.Flags().String("comment", "", "promotion comment template")
	releaseCreateCmd.Flags().StringSlice("panel", nil, "panel id to sign off, repeatable")
	releaseCreateCmd.Flags().StringSlice("promote", nil, "panel id to sign off and promote to public, repeatable")
	_ = releaseCreateCmd.MarkFlagRequired("name")

	releaseCmd.AddCommand(releaseCreateCmd, releaseDeployCmd, releaseListCmd)
	rootCmd.AddCommand(releaseCmd)
}
