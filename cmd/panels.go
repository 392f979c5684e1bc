package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"panelcore/internal/core"
	"panelcore/pkg/domain"
)

var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "Inspect and curate panels",
}

var panelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List panels with their active version and stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		includeDeleted, _ := cmd.Flags().GetBool("all")
		panels := svc.ListPanels(cmd.Context(), includeDeleted)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVERSION\tGENES\tSTRS\tREGIONS")
		for _, p := range panels {
			snapshot, err := svc.ActiveSnapshot(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				p.ID, p.Name, p.Status, snapshot.Version,
				snapshot.Stats.NumberOfGenes, snapshot.Stats.NumberOfSTRs, snapshot.Stats.NumberOfRegions)
		}
		return w.Flush()
	},
}

var panelsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a panel at version 0.0",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		input := core.CreatePanelInput{}
		input.Name, _ = cmd.Flags().GetString("name")
		input.Title, _ = cmd.Flags().GetString("title")
		input.Description, _ = cmd.Flags().GetString("description")
		input.Types, _ = cmd.Flags().GetStringSlice("type")
		input.ChildPanels, _ = cmd.Flags().GetStringSlice("child")
		panel, err := svc.CreatePanel(cmd.Context(), input, actingUser())
		if err != nil {
			return err
		}
		fmt.Printf("created panel %s (%s)\n", panel.ID, panel.Name)
		return nil
	},
}

var panelsShowCmd = &cobra.Command{
	Use:   "show <panel-id>",
	Short: "Print a panel with its active snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		panel, err := svc.GetPanel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		snapshot, err := svc.ActiveSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(struct {
			Panel    domain.Panel         `json:"panel"`
			Snapshot domain.PanelSnapshot `json:"snapshot"`
		}{panel, snapshot})
	},
}

var panelsVersionsCmd = &cobra.Command{
	Use:   "versions <panel-id>",
	Short: "List the panel's frozen versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSIGNED OFF\tREASON\tCREATED")
		for _, hist := range svc.PanelVersions(cmd.Context(), args[0]) {
			signedOff := ""
			if hist.SignedOffDate != nil {
				signedOff = hist.SignedOffDate.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				hist.Version, signedOff, hist.Reason, hist.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var panelsBumpCmd = &cobra.Command{
	Use:   "bump <panel-id>",
	Short: "Freeze the active version and start the next one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		opts := core.IncrementOptions{}
		opts.Major, _ = cmd.Flags().GetBool("major")
		opts.Comment, _ = cmd.Flags().GetString("comment")
		snapshot, err := svc.IncrementVersion(cmd.Context(), args[0], opts, actingUser())
		if err != nil {
			return err
		}
		fmt.Printf("panel %s now at version %s\n", args[0], snapshot.Version)
		return nil
	},
}

var panelsSignOffCmd = &cobra.Command{
	Use:   "signoff <panel-id>",
	Short: "Sign off the panel's active version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		hist, err := svc.SignOffPanel(cmd.Context(), args[0], time.Now().UTC(), actingUser())
		if err != nil {
			return err
		}
		fmt.Printf("signed off panel %s at version %s\n", args[0], hist.Version)
		return nil
	},
}

var panelsActivityCmd = &cobra.Command{
	Use:   "activity <panel-id>",
	Short: "Print the panel's activity log, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closer, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		activities, err := svc.Activities(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tUSER\tENTITY\tTEXT")
		for _, a := range activities {
			entity := a.EntityName
			if a.EntityKind != "" {
				entity = fmt.Sprintf("%s/%s", a.EntityKind, a.EntityName)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.CreatedAt.Format(time.RFC3339), a.User, entity, a.Text)
		}
		return w.Flush()
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	panelsListCmd.Flags().Bool("all", false, "include deleted panels")

	panelsCreateCmd.Flags().String("name", "", "panel level4 name")
	panelsCreateCmd.Flags().String("title", "", "display title (defaults to name)")
	panelsCreateCmd.Flags().String("description", "", "panel description")
	panelsCreateCmd.Flags().StringSlice("type", nil, "panel type, repeatable")
	panelsCreateCmd.Flags().StringSlice("child", nil, "child panel id, repeatable; makes a super-panel")
	_ = panelsCreateCmd.MarkFlagRequired("name")

	panelsBumpCmd.Flags().Bool("major", false, "bump the major version")
	panelsBumpCmd.Flags().String("comment", "", "version comment")

	panelsCmd.AddCommand(panelsListCmd, panelsCreateCmd, panelsShowCmd,
		panelsVersionsCmd, panelsBumpCmd, panelsSignOffCmd, panelsActivityCmd)
	rootCmd.AddCommand(panelsCmd)
}
