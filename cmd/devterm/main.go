package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devterminal/internal/app"
	"devterminal/internal/config"
	"devterminal/internal/domain"
	"devterminal/internal/engine"
	"devterminal/internal/repo"
	"devterminal/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "devterm",
	Short: "Dev terminal CLI",
	Long: `devterm turns natural-language feature requests into generated platform code.
Core concepts:
- Request: a prompt plus its type, target roles and build mode; moves pending -> analyzing -> building -> completed/failed, and can be reverted.
- Analysis: keyword rules predict which artifacts a prompt needs and how complex it is.
- Steps: the ordered build plan (schema, policies, component, integration, tests) executed fail-fast.
- Artifacts: generated SQL, TSX and edge function sources, stamped rather than deleted on revert.
- Workspace: the .devterm directory holding the SQLite database; devterm.yml holds the config.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DEVTERM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/devterm.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty-log", true, "human readable logs")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "log-level", "pretty-log"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(revertCmd())
	rootCmd.AddCommand(cloneCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func analyzeCmd() *cobra.Command {
	var opts engine.AnalyzeOptions
	var prompt string
	cmd := &cobra.Command{
		Use:   "analyze [prompt]",
		Short: "Submit a request and plan its build",
		Long:  "Stores a new request, predicts the artifacts it needs and persists the step plan. With --build the plan runs right away unless --preview-first is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				prompt = strings.Join(args, " ")
			}
			opts.Prompt = prompt
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Analyze(ctx, opts)
				if err != nil && res.Request.ID == "" {
					return err
				}
				if viper.GetBool("json") {
					if perr := printJSON(res); perr != nil {
						return perr
					}
					return err
				}
				printRequest(res.Request)
				fmt.Printf("Entity: %s  Complexity: %d  Predicted: %s\n", res.Analysis.EntityName, res.Analysis.Complexity,
					strings.Join(res.Analysis.PredictedArtifacts, ", "))
				if len(res.Analysis.LinkedModules) > 0 {
					fmt.Printf("Linked modules: %s\n", strings.Join(res.Analysis.LinkedModules, ", "))
				}
				printSteps(res.Steps)
				if len(res.Artifacts) > 0 {
					printArtifacts(res.Artifacts)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "request prompt")
	cmd.Flags().StringVar(&opts.RequestType, "type", "", "request type (default from config)")
	cmd.Flags().StringSliceVar(&opts.TargetUsers, "users", nil, "target user roles")
	cmd.Flags().StringVar(&opts.BuildMode, "build-mode", "", "build mode (default from config)")
	cmd.Flags().BoolVar(&opts.UseCivicMemory, "civic-memory", false, "consult civic memory patterns")
	cmd.Flags().BoolVar(&opts.PreviewBeforeBuild, "preview-first", false, "require a preview before building")
	cmd.Flags().BoolVar(&opts.AutoBuild, "build", false, "build right after analysis")
	return cmd
}

func buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <request-id>",
		Short: "Execute the build plan of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Build(ctx, args[0], viper.GetString("actor-id"))
				if res.Request.ID == "" {
					return err
				}
				if viper.GetBool("json") {
					if perr := printJSON(res); perr != nil {
						return perr
					}
					return err
				}
				printRequest(res.Request)
				printArtifacts(res.Artifacts)
				return err
			})
		},
	}
}

func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <request-id>",
		Short: "Show a request with its steps and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Preview(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printRequest(res.Request)
				printSteps(res.Steps)
				printArtifacts(res.Artifacts)
				return nil
			})
		},
	}
}

func revertCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revert <request-id>",
		Short: "Mark every artifact of a request reverted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Revert(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printRequest(res.Request)
				fmt.Printf("Artifacts reverted: %d\n", res.Reverted)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "revert reason")
	return cmd
}

func cloneCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "clone <request-id>",
		Short: "Copy a request into a new pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clone, err := e.Clone(ctx, engine.CloneOptions{RequestID: args[0], Prompt: prompt, ActorID: viper.GetString("actor-id")})
				if err != nil {
					return err
				}
				return printJSONOrRequest(clone)
			})
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "replacement prompt")
	return cmd
}

func statusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent activity and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Status(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Health: %s (%.1f%% of %d recent requests completed)\n",
					healthColor(report.Health.Status), report.Health.SuccessRate, report.Health.Total)
				fmt.Println("Active requests:")
				printRequests(report.ActiveRequests)
				fmt.Println("Recent requests:")
				printRequests(report.RecentRequests)
				fmt.Println("Recent artifacts:")
				printArtifacts(report.RecentArtifacts)
				fmt.Println("Civic memory patterns:")
				printPatterns(report.Patterns)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "recent window (default from config)")
	return cmd
}

func artifactCmd() *cobra.Command {
	art := &cobra.Command{Use: "artifact", Short: "Inspect generated artifacts"}
	art.AddCommand(&cobra.Command{
		Use:   "show <artifact-id>",
		Short: "Print the generated source of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				header := fmt.Sprintf("-- %s %s", a.ArtifactType, a.ArtifactName)
				if a.FilePath != nil {
					header += " (" + *a.FilePath + ")"
				}
				if !a.Active() {
					header += " " + color.YellowString("[reverted]")
				}
				fmt.Println(header)
				fmt.Println(a.GeneratedCode)
				return nil
			})
		},
	})
	return art
}

func rolesCmd() *cobra.Command {
	roles := &cobra.Command{Use: "roles", Short: "Role catalog"}
	roles.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known target user roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRoles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Description")
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	return roles
}

func patternsCmd() *cobra.Command {
	var limit int
	patterns := &cobra.Command{Use: "patterns", Short: "Civic memory patterns"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List patterns by usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPatterns(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printPatterns(items)
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "max patterns")
	patterns.AddCommand(list)
	return patterns
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect pipeline config",
		Long:  "devterm.yml sets the failure policy, request defaults, generator roots and the role catalog. Missing files fall back to built-in defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default devterm.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
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

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
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
			_, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println(color.GreenString("config OK"))
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every request, step and artifact transition is appended to the event log.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var requestID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListEvents(ctx, repo.EventFilters{RequestID: requestID, Limit: n, Latest: true})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "TS", "Type", "Request", "Entity", "Actor", "Payload")
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, shortID(ev.RequestID), ev.EntityKind + ":" + shortID(ev.EntityID), ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&requestID, "request", "", "request id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: basePath,
				ActorID:  viper.GetString("actor-id"),
				Log:      rt.Log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			rt.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving dev terminal API")
			fmt.Printf("Serving dev terminal API on http://%s%s/%s (OpenAPI at %s/openapi.json, metrics at /metrics)\n",
				addr, basePath, server.EndpointName, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", server.DefaultBasePath, "API base path")
	return cmd
}

// --- helpers ---

func openRuntime(ctx context.Context, withMetrics bool) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace:   viper.GetString("workspace"),
		ConfigPath:  viper.GetString("config"),
		LogLevel:    viper.GetString("log-level"),
		PrettyLog:   viper.GetBool("pretty-log"),
		WithMetrics: withMetrics,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func printJSONOrRequest(r domain.DevRequest) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	printRequest(r)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printRequest(r domain.DevRequest) {
	fmt.Printf("Request %s [%s]\n", r.ID, statusColor(r.Status))
	fmt.Printf("  %s\n", r.Prompt)
	fmt.Printf("  type=%s mode=%s users=%s\n", r.RequestType, r.BuildMode, strings.Join(r.TargetUsers, ","))
	if r.SourceRequestID != nil {
		fmt.Printf("  cloned from %s\n", *r.SourceRequestID)
	}
	if r.BuildDurationMS != nil {
		fmt.Printf("  build took %dms\n", *r.BuildDurationMS)
	}
	if r.ErrorMessage != nil {
		fmt.Printf("  %s %s\n", color.RedString("error:"), *r.ErrorMessage)
	}
}

func printRequests(items []domain.DevRequest) {
	tw := newTable("ID", "Status", "Type", "Prompt", "Created")
	for _, r := range items {
		tw.AppendRow(table.Row{r.ID, statusColor(r.Status), r.RequestType, truncate(r.Prompt, 48), r.CreatedAt})
	}
	tw.Render()
}

func printSteps(items []domain.BuildStep) {
	tw := newTable("#", "Step", "Type", "Status", "Artifact", "Error")
	for _, s := range items {
		artifact, errMsg := "", ""
		if s.OutputArtifactID != nil {
			artifact = shortID(*s.OutputArtifactID)
		}
		if s.ErrorMessage != nil {
			errMsg = *s.ErrorMessage
		}
		tw.AppendRow(table.Row{s.StepOrder, s.StepName, s.StepType, statusColor(s.Status), artifact, errMsg})
	}
	tw.Render()
}

func printArtifacts(items []domain.GeneratedArtifact) {
	tw := newTable("ID", "Type", "Name", "Path", "State")
	for _, a := range items {
		path := ""
		if a.FilePath != nil {
			path = *a.FilePath
		}
		state := color.GreenString("active")
		if !a.Active() {
			state = color.YellowString("reverted")
		}
		tw.AppendRow(table.Row{a.ID, a.ArtifactType, a.ArtifactName, path, state})
	}
	tw.Render()
}

func printPatterns(items []domain.CivicMemoryPattern) {
	tw := newTable("Name", "Type", "Usage", "Success %")
	for _, p := range items {
		tw.AppendRow(table.Row{p.PatternName, p.PatternType, p.UsageCount, fmt.Sprintf("%.1f", p.SuccessRate)})
	}
	tw.Render()
}

func statusColor(status string) string {
	switch status {
	case domain.RequestCompleted:
		return color.GreenString(status)
	case domain.RequestFailed:
		return color.RedString(status)
	case domain.RequestReverted:
		return color.YellowString(status)
	case domain.RequestAnalyzing, domain.RequestBuilding, domain.StepRunning:
		return color.CyanString(status)
	default:
		return status
	}
}

func healthColor(status string) string {
	switch status {
	case engine.HealthHealthy:
		return color.GreenString(status)
	case engine.HealthWarning:
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
