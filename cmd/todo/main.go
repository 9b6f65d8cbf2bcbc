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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"todoapi/internal/app"
	"todoapi/internal/config"
	"todoapi/internal/db"
	"todoapi/internal/domain"
	"todoapi/internal/engine"
	"todoapi/internal/migrate"
	"todoapi/internal/repo"
	"todoapi/internal/server"
	todosdk "todoapi/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "todo",
	Short: "Todo API server and client",
	Long: `Runs the Todo HTTP API and talks to it.

'todo serve' starts the API. The other commands are clients of a running server
(see --server). Settings come from todo.yml (see 'todo config init'), then TODO_*
environment variables, then flags.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TODO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default ./todo.yml if present)")
	flags.String("server", "http://127.0.0.1:8080", "API base URL for client commands")
	flags.String("token", "", "bearer token for client commands")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "", "log level (overrides config)")
	flags.String("log-format", "", "log format json|console (overrides config)")
	for _, name := range []string{"config", "server", "token", "json", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(toggleCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(os.Stderr, cfg)
			if err != nil {
				return err
			}
			s, closeStore, err := app.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			handler, err := server.New(server.Config{
				Engine:   engine.New(s, logger),
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				logger.Info().Msg("shutting down")
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("graceful shutdown failed")
				}
			}()
			logger.Info().
				Str("addr", cfg.Server.Addr).
				Str("base_path", cfg.Server.BasePath).
				Bool("auth", cfg.Auth.JWTSecret != "").
				Msg("serving Todo API (OpenAPI at /openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("base-path", "", "API base path")
	cmd.Flags().String("store", "", "store driver memory|sqlite")
	cmd.Flags().StringP("workspace", "w", "", "workspace directory for the sqlite store")
	cmd.Flags().String("jwt-secret", "", "enable bearer auth with this HS256 secret")
	bindFlags(cmd, "addr", "base-path", "store", "workspace", "jwt-secret")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			todos, err := newClient().ListTodos(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(todos)
			}
			printTodos(todos...)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newClient().GetTodo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTodo(t)
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <title>",
		Short: "Create a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newClient().CreateTodo(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printTodo(t)
		},
	}
}

func editCmd() *cobra.Command {
	var title string
	var completed bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd todosdk.TodoUpdate
			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}
			if cmd.Flags().Changed("completed") {
				upd.Completed = &completed
			}
			if upd.Title == nil && upd.Completed == nil {
				return fmt.Errorf("nothing to update; pass --title and/or --completed")
			}
			t, err := newClient().UpdateTodo(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			return printTodo(t)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().BoolVar(&completed, "completed", false, "completion state")
	return cmd
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a todo's completion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			current, err := c.GetTodo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t, err := c.ToggleTodo(cmd.Context(), current.ID, current.Completed)
			if err != nil {
				return err
			}
			return printTodo(t)
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteTodo(cmd.Context(), args[0]); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": true, "id": args[0]})
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := server.IssueToken(cfg.Auth.JWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "subject": subject})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret (overrides config)")
	bindFlags(cmd, "jwt-secret")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Changes recorded by the sqlite store: creates, updates and deletes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), cfg.Store.Workspace, func(ctx context.Context, r repo.Repo) error {
				evts, err := r.LatestEvents(ctx, n, evtType, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				printEvents(evts)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "todo id filter")
	cmd.Flags().StringP("workspace", "w", "", "workspace directory")
	bindFlags(cmd, "workspace")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage todo.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default todo.yml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := config.Path(dir)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCfgCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "***"
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	cmd.AddCommand(initCmd, showCfgCmd)
	return cmd
}

// --- helpers ---

// bindFlags binds local flags to viper keys when cmd runs. Several commands
// share key names, so binding at construction time would let the last one win.
func bindFlags(cmd *cobra.Command, names ...string) {
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for _, name := range names {
			if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

// loadConfig reads the config file and applies TODO_* env vars and flags on top.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional(config.Path("."))
	}
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		key string
		dst *string
	}{
		{"addr", &cfg.Server.Addr},
		{"base-path", &cfg.Server.BasePath},
		{"store", &cfg.Store.Driver},
		{"workspace", &cfg.Store.Workspace},
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"jwt-secret", &cfg.Auth.JWTSecret},
	}
	for _, o := range overrides {
		if viper.IsSet(o.key) {
			if v := viper.GetString(o.key); v != "" {
				*o.dst = v
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient() *todosdk.Client {
	c := todosdk.New(viper.GetString("server"))
	c.BearerToken = viper.GetString("token")
	return c
}

func withRepo(ctx context.Context, workspace string, fn func(context.Context, repo.Repo) error) error {
	if _, err := os.Stat(db.Path(workspace)); err != nil {
		return fmt.Errorf("no event log at %s (the event log is written by the sqlite store)", db.Path(workspace))
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, repo.New(conn))
}

func printTodo(t todosdk.Todo) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	printTodos(t)
	return nil
}

func printTodos(todos ...todosdk.Todo) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Done", "Created", "Updated"})
	for _, t := range todos {
		done := ""
		if t.Completed {
			done = "x"
		}
		tw.AppendRow(table.Row{t.ID, t.Title, done, domain.FormatTime(t.CreatedAt), domain.FormatTime(t.UpdatedAt)})
	}
	tw.Render()
}

func printEvents(evts []domain.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "TS", "Type", "Todo", "Payload"})
	for _, e := range evts {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.Payload})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
