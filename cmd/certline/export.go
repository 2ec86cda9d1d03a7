package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"certline/internal/app"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/export"
)

func exportCmd() *cobra.Command {
	ex := &cobra.Command{
		Use:   "export",
		Short: "Generate certificate PDFs",
		Long:  "An export builds the render document, calls the render function for the certificate type, then downloads the PDF into the configured download directory.",
	}
	ex.AddCommand(exportRunCmd())
	ex.AddCommand(exportListCmd())
	ex.AddCommand(exportShowCmd())
	return ex
}

func exportRunCmd() *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "run <report-id>",
		Short: "Export a report to PDF and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				opts := engine.ExportOptions{
					ReportID:   args[0],
					TemplateID: templateID,
					ActorID:    viper.GetString("actor-id"),
				}
				var attempt domain.ExportAttempt
				var res export.Result
				var err error
				if viper.GetBool("json") {
					attempt, res, err = ws.Engine.RunExport(ctx, opts, nil)
				} else {
					attempt, res, err = runWithProgress(ctx, ws.Engine, opts)
				}
				if err != nil {
					if attempt.ID != "" {
						return fmt.Errorf("export %s: %w", attempt.ID, err)
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"attempt": attempt, "warnings": res.Warnings})
				}
				for _, w := range res.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				fmt.Println("pdf:  ", attempt.PDFURL)
				if res.FilePath != "" {
					fmt.Println("saved:", res.FilePath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id (default from config)")
	return cmd
}

// runWithProgress drives a terminal progress bar from export updates.
func runWithProgress(ctx context.Context, e engine.Engine, opts engine.ExportOptions) (domain.ExportAttempt, export.Result, error) {
	pw := progress.NewWriter()
	pw.SetOutputWriter(os.Stderr)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Value = false
	pw.Style().Visibility.Time = false

	tracker := &progress.Tracker{Message: "Preparing " + opts.ReportID, Total: 100}
	pw.AppendTracker(tracker)
	go pw.Render()

	rep := export.ReporterFunc(func(u export.Update) {
		if u.Message != "" {
			tracker.UpdateMessage(u.Message)
		}
		switch u.Stage {
		case export.StageComplete:
			tracker.SetValue(100)
			tracker.MarkAsDone()
		case export.StageError:
			tracker.MarkAsErrored()
		default:
			tracker.SetValue(int64(u.Percent))
		}
	})
	attempt, res, err := e.RunExport(ctx, opts, rep)
	if !tracker.IsDone() {
		tracker.MarkAsErrored()
	}
	// let the writer draw the final state before stopping
	time.Sleep(150 * time.Millisecond)
	pw.Stop()
	for pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
	return attempt, res, err
}

func exportListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <report-id>",
		Short: "List export attempts of a report, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListAttempts(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Status", "Progress", "Template", "Requested by", "Created", "Detail"})
				for _, a := range items {
					detail := a.PDFURL
					if a.Status == string(export.StageError) {
						detail = a.Error
					}
					tw.AppendRow(table.Row{a.ID, a.Status, fmt.Sprintf("%d%%", a.Progress), a.TemplateID, a.RequestedBy, a.CreatedAt, detail})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func exportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <attempt-id>",
		Short: "Show an export attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.GetAttempt(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}
