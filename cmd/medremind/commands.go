package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/storage"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Reload prescriptions and run one scheduling pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.runner.Generate(cmd.Context()); err != nil {
				return err
			}
			snap := a.runner.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "%d reminders queued, %d fingerprints in ledger\n", len(snap.Queue), len(snap.Ledger))
			return nil
		},
	}
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Print the persisted reminder queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			queue := a.runner.Snapshot().Queue
			if len(queue) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			writeQueue(cmd.OutOrStdout(), queue)
			return nil
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop ledger fingerprints older than the ledger TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.runner.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d ledger entries\n", n)
			return nil
		},
	}
}

func newReportsCmd(opts *rootOptions) *cobra.Command {
	var filter storage.ReportListFilter

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "List completed and missed status reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			reports, err := a.repo.ListStatusReports(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no status reports")
				return nil
			}
			writeReports(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	reportsCmd.Flags().StringVar(&filter.PrescriptionID, "prescription", "", "only reports for this prescription id")
	reportsCmd.Flags().StringVar(&filter.Status, "status", "", "completed or missed")
	reportsCmd.Flags().BoolVar(&filter.Undelivered, "undelivered", false, "only reports not yet delivered")
	reportsCmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of reports")
	reportsCmd.Flags().IntVar(&filter.Offset, "offset", 0, "reports to skip")

	markCmd := &cobra.Command{
		Use:   "mark-delivered <id>...",
		Short: "Mark status reports as delivered upstream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			at := time.Now().UTC()
			if !opts.Now.IsZero() {
				at = opts.Now
			}
			for _, id := range args {
				if err := a.repo.MarkDelivered(cmd.Context(), id, at); err != nil {
					return fmt.Errorf("mark %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d reports delivered\n", len(args))
			return nil
		},
	}
	reportsCmd.AddCommand(markCmd)
	return reportsCmd
}

func writeQueue(w io.Writer, queue []model.Reminder) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SCHEDULED", "PRESCRIPTION", "MEDICATION", "DOSE", "STATE", "DEFERS")
	for _, r := range queue {
		t.Row(
			r.ScheduledAt.Local().Format("2006-01-02 15:04"),
			r.PrescriptionID,
			r.MedicationName,
			r.Dose+" "+r.Unit,
			string(r.State),
			strconv.Itoa(r.DeferCount),
		)
	}
	fmt.Fprintln(w, t.String())
}

func writeReports(w io.Writer, reports []model.StatusReport) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "PRESCRIPTION", "REMINDER", "STATUS", "DELIVERED")
	for _, rep := range reports {
		delivered := "-"
		if rep.Delivered() {
			delivered = rep.DeliveredAt.Local().Format("2006-01-02 15:04")
		}
		t.Row(
			rep.ID,
			rep.PrescriptionID,
			rep.ReminderAt.Local().Format("2006-01-02 15:04"),
			string(rep.Status),
			delivered,
		)
	}
	fmt.Fprintln(w, t.String())
}
