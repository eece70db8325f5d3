package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stagecal/stagecal/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Manage booking statuses",
	Long: `List, add and delete the statuses local events can reference.

Examples:
  stagecal status list
  stagecal status add Confirmado "#00ff00"
  stagecal status delete st-V1StGXR8_Z5jdHi6B`,
}

var statusListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List statuses",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			statuses, err := a.service.ListStatuses(ctx)
			if err != nil {
				return err
			}
			return printStatuses(cmd.OutOrStdout(), statuses)
		})
	},
}

var statusAddCmd = &cobra.Command{
	Use:   "add <name> <color>",
	Short: "Create a status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.service.CreateStatus(ctx, models.StatusInput{Name: &args[0], Color: &args[1]})
			if err != nil {
				return err
			}
			if globalFlags.JSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created status %s (%s)\n", st.ID, st.Name)
			return nil
		})
	},
}

var statusDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a status",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.service.DeleteStatus(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted status %s (%s)\n", st.ID, st.Name)
			return nil
		})
	},
}

func init() {
	statusCmd.AddCommand(statusListCmd, statusAddCmd, statusDeleteCmd)
	RootCmd.AddCommand(statusCmd)
}

// withApp wires the store and service for a one-shot command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return fn(ctx, a)
}

func printStatuses(out io.Writer, statuses []*models.Status) error {
	if globalFlags.JSON {
		return writeJSON(out, statuses)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No statuses defined.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLOR\tUPDATED")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.ID, st.Name, st.Color, st.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
