package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"certline/internal/app"
	"certline/internal/certificate"
	"certline/internal/config"
	"certline/internal/engine"
	"certline/internal/repo"
	"certline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "certline",
	Short: "certline CLI",
	Long: `certline turns electrical installation certificate drafts (EIC, EICR, minor works)
into rendered PDF certificates.
- Report: the working document for one certificate, saved as JSON form data.
- Completeness: which sections are filled in; a certificate can be generated once
  installation details, declarations, inspections and the schedule of tests are present.
- Export: normalizes the form, resolves observation photos, calls the render
  function and saves the returned PDF locally.
- Event log: diary of saves, exports and emails, view with 'certline log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CERTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("config", "", "config file (default <workspace>/certline.yml)")
	flags.String("render-url", "", "render functions base url (overrides config)")
	flags.String("render-api-key", "", "render functions api key (prefer CERTLINE_RENDER_API_KEY)")
	flags.String("public-base-url", "", "public storage base url (overrides config)")
	flags.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "config", "render-url", "render-api-key", "public-base-url", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(photoCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(emailCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func setupLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Manage certificate reports"}
	rep.AddCommand(reportSaveCmd())
	rep.AddCommand(reportShowCmd())
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportStatusCmd())
	rep.AddCommand(reportPreviewCmd())
	return rep
}

func reportSaveCmd() *cobra.Command {
	var id, certType, file string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a report draft from a JSON form file",
		Long:  "Save upserts the report; the last write wins. Use --file - to read the form from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				rep, warnings, err := ws.Engine.SaveDraft(ctx, engine.SaveDraftOptions{
					ReportID:   id,
					ReportType: certType,
					FormJSON:   data,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"report": rep, "warnings": warnings})
				}
				for _, w := range warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				fmt.Printf("saved %s (%s)\n", rep.ReportID, rep.ReportType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "report id (generated when empty)")
	cmd.Flags().StringVar(&certType, "type", "eic", "certificate type")
	cmd.Flags().StringVarP(&file, "file", "f", "", "form JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func reportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				rep, err := ws.Engine.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
}

func reportListCmd() *cobra.Command {
	var f repo.ReportFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListReports(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Client", "Completeness", "Updated"})
				for _, r := range items {
					st := certificate.Evaluate(r.Form)
					tw.AppendRow(table.Row{r.ReportID, r.ReportType, r.Status, r.Form.ClientName, st.Composite, r.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ReportType, "type", "", "certificate type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (draft, completed)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func reportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <report-id>",
		Short: "Show report completeness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				st, err := ws.Engine.Completeness(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Section", "Complete"})
				tw.AppendRow(table.Row{"Installation details", yesNo(st.HasInstallationDetails)})
				tw.AppendRow(table.Row{"Declarations", yesNo(st.HasDeclarations)})
				tw.AppendRow(table.Row{"Inspections", yesNo(st.HasInspections)})
				tw.AppendRow(table.Row{"Test results", yesNo(st.HasTestResults)})
				tw.AppendFooter(table.Row{"Status", st.Composite})
				tw.Render()
				if len(st.Missing) > 0 {
					fmt.Println("missing:", strings.Join(st.Missing, ", "))
				}
				return nil
			})
		},
	}
}

func reportPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <report-id>",
		Short: "Print the document sent to the render function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				data, err := ws.Engine.Preview(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			})
		},
	}
}

func photoCmd() *cobra.Command {
	ph := &cobra.Command{Use: "photo", Short: "Manage observation photos"}
	ph.AddCommand(photoAddCmd())
	ph.AddCommand(photoListCmd())
	return ph
}

func photoAddCmd() *cobra.Command {
	var observationID, filePath string
	cmd := &cobra.Command{
		Use:   "add <report-id>",
		Short: "Link an uploaded photo to an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.AddPhoto(ctx, args[0], observationID, filePath, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrText(p, fmt.Sprintf("added photo %s to observation %s", p.ID, p.ObservationID))
			})
		},
	}
	cmd.Flags().StringVar(&observationID, "observation", "", "observation id")
	cmd.Flags().StringVar(&filePath, "path", "", "object path in the photo bucket")
	_ = cmd.MarkFlagRequired("observation")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func photoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <report-id>",
		Short: "List photos of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListPhotos(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Observation", "Path", "Added"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.ObservationID, p.FilePath, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func emailCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "email <report-id>",
		Short: "Email the generated certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.EmailCertificate(ctx, args[0], to, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrText(map[string]any{"report_id": args[0], "recipient": to, "sent": true}, "sent to "+to)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient email")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in certline.yml in the workspace: render functions and templates per certificate type, storage buckets, export options and webhooks.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default certline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				evts, err := ws.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Report", "Actor", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityID, "report", "", "report id filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				key, secret, err := ws.Engine.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\nStore the key now; it cannot be shown again.\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := viper.GetString("actor-id")
			if all {
				actor = ""
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Engine.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list keys of every actor")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.RevokeAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt_secret"),
					AllowLegacyActorHeader: allowActorHeader,
					DevLogin:               devLogin,
					Logger:                 slog.Default(),
				}
				if authCfg.JWTSecret == "" && !allowActorHeader {
					return fmt.Errorf("CERTLINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(ctx, ws.Engine, slog.Default())
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving certline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept unauthenticated X-Actor-Id (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}

// --- helpers ---

func overrides() app.Overrides {
	return app.Overrides{
		RenderBaseURL: viper.GetString("render-url"),
		RenderAPIKey:  viper.GetString("render-api-key"),
		PublicBaseURL: viper.GetString("public-base-url"),
		ConfigPath:    viper.GetString("config"),
	}
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), overrides(), slog.Default())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(file)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrText(v any, text string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(text)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
