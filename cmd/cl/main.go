package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"choreline/internal/app"
	"choreline/internal/config"
	"choreline/internal/db"
	"choreline/internal/domain"
	"choreline/internal/logging"
	"choreline/internal/migrate"
	"choreline/internal/repo"
	"choreline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Choreline CLI",
	Long: `Choreline keeps track of who does which household chore.
- Users: household members with a username and password.
- Tasks: chores with a unique name.
- Assignments: one task given to one user. An assignment is open until its
  owner completes it, then pending review until someone approves or rejects it.
  A task has at most one open or pending assignment at a time.
- Rotation: 'cl task rotate' hands every unassigned task to the least loaded
  members. Only roles with rotation.run may rotate by default.
- Event log: every change is recorded, view with 'cl log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CHORELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("actor-id", 0, "id of the user running the command")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("dsn", "", "store DSN (overrides config)")
	rootCmd.PersistentFlags().String("driver", "", "store driver: sqlite or postgres (overrides config)")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "dsn", "driver"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func initCmd() *cobra.Command {
	var household string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create choreline.yml and the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			secret, err := randomSecret()
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(household, secret)), 0o600); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Initialized %q in %s\n", household, workspace)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&household, "household", "home", "household name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func migrateCmd() *cobra.Command {
	m := &cobra.Command{Use: "migrate", Short: "Manage store migrations"}
	m.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Println("migrations applied")
				return nil
			})
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := migrate.List(ctx, a.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Version", "Name", "Applied", "Applied At")
				for _, s := range items {
					at := ""
					if !s.AppliedAt.IsZero() {
						at = s.AppliedAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{s.Version, s.Name, s.Applied, at})
				}
				tw.Render()
				return nil
			})
		},
	})
	return m
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				handler, err := server.New(server.Config{
					Engine:      a.Engine,
					Credentials: a.Credentials,
					BasePath:    basePath,
					Auth:        server.AuthConfig{TokenSecret: a.Config.Auth.TokenSecret},
					Metrics:     a.Metrics,
					Logger:      a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving", "addr", addr, "base_path", basePath, "household", a.Config.Household.Name)
				fmt.Printf("Serving Choreline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo users, chores and assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Seed(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("seeded %d users, %d tasks, %d assignments (password %q)\n",
					len(res.Users), len(res.Tasks), len(res.Assignments), app.SeedPassword)
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage household members"}
	u.AddCommand(userRegisterCmd())
	u.AddCommand(userLoginCmd())
	u.AddCommand(userListCmd())
	return u
}

func userRegisterCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CHORELINE_PASSWORD")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Credentials.Register(ctx, username, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password (or CHORELINE_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func userLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and print a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CHORELINE_PASSWORD")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Credentials.Authenticate(ctx, username, password)
				if err != nil {
					return err
				}
				token, exp, err := a.Credentials.IssueToken(ctx, u)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user_id": u.ID, "token": token, "expires_at": exp})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password (or CHORELINE_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func userListCmd() *cobra.Command {
	var filters []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := queryFromFlags(repo.ResourceUsers, filters)
				if err != nil {
					return err
				}
				users, err := a.Engine.ListUsers(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable("ID", "Username", "Created")
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Username, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&filters, "where", nil, "filter as column=op.value, e.g. username=eq.user1 (repeatable)")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage chores and their assignments"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskAssignCmd())
	t.AddCommand(taskCompleteCmd())
	t.AddCommand(taskRejectCmd())
	t.AddCommand(taskRotateCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a chore",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, name, desc, viper.GetInt64("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	var filters []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := queryFromFlags(repo.ResourceTasks, filters)
				if err != nil {
					return err
				}
				tasks, err := a.Engine.ListTasks(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable("ID", "Name", "Description")
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&filters, "where", nil, "filter as column=op.value (repeatable)")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var taskID, userID int64
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a chore to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				userID = viper.GetInt64("actor-id")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				asg, err := a.Engine.AssignTask(ctx, taskID, userID)
				if err != nil {
					return err
				}
				return printAssignment(asg)
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task-id", 0, "task id")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id (defaults to --actor-id)")
	_ = cmd.MarkFlagRequired("task-id")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var assignmentID int64
	var notes string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete an assignment as --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				asg, err := a.Engine.CompleteTask(ctx, assignmentID, viper.GetInt64("actor-id"), notes)
				if err != nil {
					return err
				}
				return printAssignment(asg)
			})
		},
	}
	cmd.Flags().Int64Var(&assignmentID, "assignment-id", 0, "assignment id")
	cmd.Flags().StringVar(&notes, "notes", "", "completion notes")
	_ = cmd.MarkFlagRequired("assignment-id")
	return cmd
}

func taskRejectCmd() *cobra.Command {
	var assignmentID int64
	var reason string
	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a completed assignment as --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				asg, err := a.Engine.RejectTask(ctx, assignmentID, viper.GetInt64("actor-id"), reason)
				if err != nil {
					return err
				}
				return printAssignment(asg)
			})
		},
	}
	cmd.Flags().Int64Var(&assignmentID, "assignment-id", 0, "assignment id")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("assignment-id")
	return cmd
}

func taskRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Assign every unassigned chore to the least loaded members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.RotateTasks(ctx, viper.GetInt64("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable("Assignment", "Task", "User")
				for _, asg := range res.Assignments {
					tw.AppendRow(table.Row{asg.ID, asg.TaskID, asg.UserID})
				}
				tw.AppendFooter(table.Row{"", "rotated", res.Rotated})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func assignmentCmd() *cobra.Command {
	asg := &cobra.Command{Use: "assignment", Short: "Inspect assignments"}
	asg.AddCommand(assignmentListCmd())
	return asg
}

func assignmentListCmd() *cobra.Command {
	var filters []string
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments with their users and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if state != "" {
				filters = append(filters, "state="+state)
			}
			filters = append(filters, "select=*,users(username),tasks(task_name)")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := queryFromFlags(repo.ResourceAssignments, filters)
				if err != nil {
					return err
				}
				rows, err := a.Engine.ListAssignments(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("ID", "Task", "User", "State", "Assigned", "Completed")
				for _, r := range rows {
					completed := ""
					if r.CompletedAt != nil {
						completed = *r.CompletedAt
					}
					taskName, username := "", ""
					if r.Tasks != nil {
						taskName = r.Tasks.TaskName
					}
					if r.Users != nil {
						username = r.Users.Username
					}
					tw.AppendRow(table.Row{r.ID, taskName, username, r.State(), r.AssignedAt, completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "open, pending_review, approved or rejected")
	cmd.Flags().StringArrayVar(&filters, "where", nil, "filter as column=op.value (repeatable)")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "Manage roles",
		Long:  "Roles and their permissions are defined in choreline.yml; grant and revoke bind users to roles.",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show roles and permissions of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				who, err := a.Engine.Auth.Whoami(ctx, viper.GetInt64("actor-id"))
				if errors.Is(err, repo.ErrNotFound) {
					return domain.ErrUserNotFound.WithMessage("user %d not found", viper.GetInt64("actor-id"))
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
}

func rbacGrantCmd() *cobra.Command {
	var userID int64
	var role string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.GrantRole(ctx, userID, role, viper.GetInt64("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var userID int64
	var role string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RevokeRole(ctx, userID, role, viper.GetInt64("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor", "Payload")
				for _, ev := range events {
					entity := ev.EntityKind
					if ev.EntityID != nil {
						entity = fmt.Sprintf("%s/%d", ev.EntityKind, *ev.EntityID)
					}
					actor := ""
					if ev.ActorID != nil {
						actor = fmt.Sprint(*ev.ActorID)
					}
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, entity, actor, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().Int64Var(&f.EntityID, "entity-id", 0, "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect choreline.yml",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate choreline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

// --- helpers ---

// loadConfig reads choreline.yml and applies flag and CHORELINE_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.Store.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.Store.DSN = v
	}
	if v := viper.GetString("token-secret"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, cfg.Validate()
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level)
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func queryFromFlags(res repo.Resource, filters []string) (repo.Query, error) {
	params := url.Values{}
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return repo.Query{}, domain.ErrInvalidFilter.WithMessage("filter %q must be key=value", f)
		}
		params.Add(k, v)
	}
	return repo.ParseQuery(res, params)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printAssignment(a domain.Assignment) error {
	return printJSONOrTable(struct {
		domain.Assignment
		State domain.State `json:"state"`
	}{a, a.State()})
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
