package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"boothbook/internal/app"
	"boothbook/internal/database"
	"boothbook/internal/export"
	"boothbook/internal/models"
	"boothbook/internal/service"

	"github.com/spf13/cobra"
)

func newSlotsCmd(opts *rootOptions) *cobra.Command {
	var onlyProblems bool
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show slot index diagnostics",
		Long: `Print every slot with the appointment IDs in its index, how many of them
are active and whether the slot is over capacity.

Examples:
  boothctl slots
  boothctl slots --problems`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{SkipIntegrations: true}, func(ctx context.Context, a *app.App) error {
				diag, err := a.Booking.DebugSlots(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SLOT\tACTIVE\tMAX\tIDS\tMISSING\tSTATE")
				for _, d := range diag {
					if onlyProblems && !d.OverCapacity && !d.Orphaned && len(d.MissingRecords) == 0 {
						continue
					}
					state := "ok"
					switch {
					case d.OverCapacity:
						state = "OVER CAPACITY"
					case d.Orphaned:
						state = "orphaned"
					}
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
						d.Slot, d.ActiveCount, d.MaxPerSlot, len(d.AppointmentIDs), len(d.MissingRecords), state)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&onlyProblems, "problems", false, "only list over-capacity, orphaned or dangling slot indexes")
	return cmd
}

func newRemindersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Reminder email commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Send reminders for tomorrow's confirmed appointments now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{}, func(ctx context.Context, a *app.App) error {
				res, err := a.Reminders.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent=%d skipped=%d failed=%d\n", res.Sent, res.Skipped, res.Failed)
				return nil
			})
		},
	})
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	var limit int
	var asJSON bool
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the newest audit entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("-n must be at least 1")
			}
			return withApp(cmd, opts, app.Options{SkipIntegrations: true}, func(ctx context.Context, a *app.App) error {
				entries, err := a.Audit.List(ctx, limit)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				loc := a.Schedule.Location()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tACTION\tUSER\tAPPOINTMENT\tDETAILS")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.In(loc).Format("2006-01-02 15:04:05"), e.Action, e.User, e.AppointmentID, e.Details)
				}
				return tw.Flush()
			})
		},
	}
	tail.Flags().IntVarP(&limit, "lines", "n", 20, "number of entries")
	tail.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(tail)
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all appointments and slot usage to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = fmt.Sprintf("appointments_%s.xlsx", time.Now().Format("20060102_1504"))
			}
			return withApp(cmd, opts, app.Options{SkipIntegrations: true}, func(ctx context.Context, a *app.App) error {
				appts, err := a.Booking.List(ctx, service.ListFilter{})
				if err != nil {
					return err
				}
				slots, err := a.Booking.Availability(ctx)
				if err != nil {
					return err
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				if err := export.Write(f, appts, slots, a.Schedule.Location()); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d appointments to %s\n", len(appts), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default appointments_<timestamp>.xlsx)")
	return cmd
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Booking settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{SkipIntegrations: true}, func(ctx context.Context, a *app.App) error {
				settings, err := a.Settings.Get(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(settings)
			})
		},
	})
	return cmd
}

func newNotificationsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and process the side-effect outbox",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Count outbox tasks by status and list failed ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{SkipIntegrations: true}, func(ctx context.Context, a *app.App) error {
				return printOutboxStatus(ctx, cmd, a.Outbox)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Process every due outbox task once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{}, func(ctx context.Context, a *app.App) error {
				n := a.Worker.Drain(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d tasks\n", n)
				return nil
			})
		},
	})
	return cmd
}

func printOutboxStatus(ctx context.Context, cmd *cobra.Command, db *database.DB) error {
	counts, err := db.CountByStatus(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, status := range []string{models.TaskStatusPending, models.TaskStatusRetry, models.TaskStatusCompleted, models.TaskStatusFailed} {
		fmt.Fprintf(out, "%-10s %d\n", status, counts[status])
	}

	failed, err := db.GetFailedTasks(ctx)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAPPOINTMENT\tRETRIES\tERROR")
	for _, t := range failed {
		lastErr := ""
		if t.LastError != nil {
			lastErr = strings.ReplaceAll(*t.LastError, "\n", " ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", t.ID, t.TaskType, t.AppointmentID, t.RetryCount, lastErr)
	}
	return tw.Flush()
}

func newSheetsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Google Sheets mirror commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Rewrite the appointment sheet from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{}, func(ctx context.Context, a *app.App) error {
				if a.Sheets == nil {
					return fmt.Errorf("google sheets is not configured")
				}
				if err := a.Sheets.TestConnection(ctx); err != nil {
					return err
				}
				appts, err := a.Booking.List(ctx, service.ListFilter{})
				if err != nil {
					return err
				}
				if err := a.Sheets.ReplaceAll(ctx, appts); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d appointments to the sheet\n", len(appts))
				return nil
			})
		},
	})
	return cmd
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the outbox database now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, app.Options{SkipIntegrations: true}, func(ctx context.Context, a *app.App) error {
				backups := database.NewBackupService(a.Outbox, a.Config.Backup, a.Logger)
				path, err := backups.PerformBackup(ctx)
				if err != nil {
					return err
				}
				removed := backups.CleanupOldBackups()
				fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s (%d old backups removed)\n", path, removed)
				return nil
			})
		},
	}
}
