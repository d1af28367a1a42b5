package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"approline/internal/app"
	"approline/internal/config"
	"approline/internal/db"
	"approline/internal/domain"
	"approline/internal/engine"
	"approline/internal/migrate"
	"approline/internal/repo"
	"approline/internal/server"
	"approline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "apl",
	Short: "Approline CLI",
	Long: `Approline tracks public-private-partnership project dossiers through
the institutional approval pipeline: nine review stages across three
phases (identification, études, passation), each gated by one
institutional role. Decisions are FAVORABLE, RESERVE (return for
correction) or REJET, always with a written justification, and the
approval history is append-only.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("APPROLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-name", "local-user", "acting identity name")
	rootCmd.PersistentFlags().String("actor-role", string(domain.RoleAdmin), "acting identity role")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-name", rootCmd.PersistentFlags().Lookup("actor-name"))
	_ = viper.BindPFlag("actor-role", rootCmd.PersistentFlags().Lookup("actor-role"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(platformCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(forceStageCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(aiCmd())
	rootCmd.AddCommand(serveCmd())
}

func identity() domain.Identity {
	return domain.Identity{
		Role: domain.Role(viper.GetString("actor-role")),
		Name: viper.GetString("actor-name"),
	}
}

func platformCmd() *cobra.Command {
	platform := &cobra.Command{Use: "platform", Short: "Manage the platform workspace"}
	platform.AddCommand(platformInitCmd())
	platform.AddCommand(platformConfigShowCmd())
	return platform
}

func platformInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := app.ResolvePlatformConfig(workspace, id)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Initialized platform %q in %s\n", cfg.Platform.ID, workspace)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "uc-ppp", "platform id")
	return cmd
}

func platformConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage project dossiers"}
	prj.AddCommand(projectSubmitCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectHistoryCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectSubmitCmd() *cobra.Command {
	var opts engine.SubmitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new project dossier",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Submitter = identity()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SubmitProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "project title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Sector, "sector", "", "sector")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.Authority, "authority", "", "contracting authority")
	cmd.Flags().Int64Var(&opts.CapexUSD, "capex", 0, "capital expenditure (USD)")
	cmd.Flags().Int64Var(&opts.OpexUSD, "opex", 0, "operating expenditure (USD)")
	cmd.Flags().IntVar(&opts.DurationYears, "duration", 0, "contract duration (years)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("authority")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f engine.ListFilters
	var phase, stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project dossiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Phase = domain.Phase(phase)
			f.Stage = domain.StageID(stage)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Authority", "Stage", "Progress"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Authority, workflow.LabelOf(p.Stage), fmt.Sprintf("%d%%", p.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "filter by phase (identification, etudes, passation)")
	cmd.Flags().StringVar(&stage, "stage", "", "filter by stage id")
	cmd.Flags().StringVar(&f.Authority, "authority", "", "filter by contracting authority")
	cmd.Flags().StringVar(&f.Ministry, "ministry", "", "filter by supervising ministry")
	cmd.Flags().StringVar(&f.Sector, "sector", "", "filter by sector")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project dossier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the approval history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("project id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p.History)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Action", "Role", "Actor", "New stage", "Comment"})
				for _, d := range p.History {
					tw.AppendRow(table.Row{d.TS, d.Action, d.ActorRole, d.ActorName, workflow.LabelOf(d.NewStage), d.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project dossier (admin workspace cleanup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity().Role != domain.RoleAdmin {
				return fmt.Errorf("only %s may delete projects", domain.RoleAdmin)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteProject(ctx, args[0])
			})
		},
	}
	return cmd
}

func decideCmd() *cobra.Command {
	var action, comment string
	cmd := &cobra.Command{
		Use:   "decide <project-id>",
		Short: "Record a review decision",
		Long:  "Record FAVORABLE, RESERVE or REJET on the project's current stage. A written justification is mandatory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RecordDecision(ctx, args[0], domain.Action(strings.ToUpper(action)), comment, identity())
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("Project %s is now at: %s\n", p.ID, workflow.LabelOf(p.Stage))
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "decision action (FAVORABLE, RESERVE, REJET)")
	cmd.Flags().StringVar(&comment, "comment", "", "written justification")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func forceStageCmd() *cobra.Command {
	var stage, reason string
	cmd := &cobra.Command{
		Use:   "force-stage <project-id>",
		Short: "Force a project to a stage (admin/coordinator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ForceStage(ctx, args[0], domain.StageID(stage), reason, identity())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "target stage id")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the manual move")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List dossiers awaiting my decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.PendingFor(ctx, identity())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Authority", "Stage"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Authority, workflow.LabelOf(p.Stage)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the stage catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := workflow.Stages()
			if viper.GetBool("json") {
				return printJSON(stages)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "ID", "Label", "Phase", "Gating role"})
			for i, s := range stages {
				tw.AppendRow(table.Row{i + 1, s.ID, s.Label, s.Phase, s.GatingRole})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountProjectsByStage(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Projects"})
				for _, s := range workflow.Stages() {
					if n := counts[s.ID]; n > 0 {
						tw.AppendRow(table.Row{s.Label, n})
					}
				}
				for _, terminal := range []domain.StageID{domain.StageActive, domain.StageRejected} {
					if n := counts[terminal]; n > 0 {
						tw.AppendRow(table.Row{workflow.LabelOf(terminal), n})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func docCmd() *cobra.Command {
	doc := &cobra.Command{Use: "doc", Short: "Manage dossier documents"}
	doc.AddCommand(docAttachCmd())
	doc.AddCommand(docListCmd())
	return doc
}

func docAttachCmd() *cobra.Command {
	var name, kind, url string
	cmd := &cobra.Command{
		Use:   "attach <project-id>",
		Short: "Attach document metadata to a dossier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AttachDocument(ctx, args[0], name, kind, url, identity())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "document name")
	cmd.Flags().StringVar(&kind, "kind", "misc", "document kind")
	cmd.Flags().StringVar(&url, "url", "", "document url")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func docListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List dossier documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				docs, err := r.ListDocuments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(docs)
			})
		},
	}
	return cmd
}

func profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Manage user profiles"}
	profile.AddCommand(profileRegisterCmd())
	profile.AddCommand(profileListCmd())
	return profile
}

func profileRegisterCmd() *cobra.Command {
	var email, department, ministry string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register or update the acting identity's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := identity()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterProfile(ctx, domain.UserProfile{
					Name:                id.Name,
					Email:               email,
					Role:                id.Role,
					Department:          department,
					SupervisingMinistry: ministry,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&ministry, "ministry", "", "supervising ministry")
	return cmd
}

func profileListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProfiles(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actor, role, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the clear key once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, clear, err := e.CreateAPIKey(ctx, actor, domain.Role(role), name)
				if err != nil {
					return err
				}
				fmt.Printf("API key %s created for %s (%s)\n", key.ID, key.ActorName, key.Role)
				fmt.Printf("Key (store it now, it is not retrievable): %s\n", clear)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor name the key authenticates as")
	cmd.Flags().StringVar(&role, "role", "", "role the key carries")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor name")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Audit event log"}
	logRoot.AddCommand(logTailCmd())
	return logRoot
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, projectID, evtType, "", "")
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	return cmd
}

func aiCmd() *cobra.Command {
	aiRoot := &cobra.Command{Use: "ai", Short: "AI assistance for dossiers"}
	aiRoot.AddCommand(aiAnalyzeCmd())
	aiRoot.AddCommand(aiSummaryCmd())
	return aiRoot
}

func aiAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <project-id>",
		Short: "Generate a risk analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logger, err := app.NewLogger(viper.GetBool("verbose"))
				if err != nil {
					return err
				}
				defer logger.Sync()
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				text, err := app.BuildAnalyst(e.Config, logger).RiskAnalysis(ctx, p)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	return cmd
}

func aiSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <project-id>",
		Short: "Generate a citizen-facing summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logger, err := app.NewLogger(viper.GetBool("verbose"))
				if err != nil {
					return err
				}
				defer logger.Sync()
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				text, err := app.BuildAnalyst(e.Config, logger).CitizenSummary(ctx, p)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolvePlatformConfig(workspace, "")
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(viper.GetBool("verbose"))
			if err != nil {
				return err
			}
			defer logger.Sync()
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret: os.Getenv("APPROLINE_JWT_SECRET"),
				DevLogin:  devLogin,
				Logger:    logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("APPROLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				Analyst:  app.BuildAnalyst(cfg, logger),
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving Approline API",
				zap.String("addr", addr),
				zap.String("base_path", basePath))
			fmt.Printf("Serving Approline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the unauthenticated dev token endpoint")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolvePlatformConfig(workspace, "")
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
