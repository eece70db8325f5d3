package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stagecal/stagecal/internal/calendar"
)

var exportFlags struct {
	Out string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export local events as iCalendar",
	Long: `Write every locally stored event to an .ics file, or to stdout when
--out is "-". External events need a Zoho session and are exported by
GET /api/events/calendar.ics instead.

Example:
  stagecal export --out bookings.ics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			events, err := a.service.LocalEvents(ctx)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if exportFlags.Out != "-" {
				f, err := os.Create(exportFlags.Out)
				if err != nil {
					return fmt.Errorf("create %s: %w", exportFlags.Out, err)
				}
				defer f.Close()
				w = f
			}

			if err := calendar.WriteICS(w, events, time.Now()); err != nil {
				return err
			}
			if exportFlags.Out != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d event(s) to %s\n", len(events), exportFlags.Out)
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.Out, "out", "o", "-", "Output file (- for stdout)")
	RootCmd.AddCommand(exportCmd)
}
