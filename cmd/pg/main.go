package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pressgate/internal/config"
	"pressgate/internal/db"
	"pressgate/internal/domain"
	"pressgate/internal/engine"
	"pressgate/internal/migrate"
	"pressgate/internal/repo"
	"pressgate/internal/server"
	"pressgate/internal/status"
	"pressgate/internal/taxonomy"
	"pressgate/internal/wp"
)

var rootCmd = &cobra.Command{
	Use:   "pg",
	Short: "Pressgate CLI",
	Long: `Pressgate publishes posts to a WordPress site through its REST API.
It validates requests up front, resolves categories and tags, uploads
images, writes SEO metadata to both the plugin fields and raw post
meta, and keeps a local history of everything it published.

Configuration lives in pressgate.yml (see 'pg config init'); the
WordPress credentials come from the environment via ${VAR} expansion.`,
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
	viper.SetEnvPrefix("PRESSGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "pressgate.yml", "config file path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(taxonomyCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(statusesCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func publishCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a post from a JSON request file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.Publish(ctx, req, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if err := printJSONOrTable(result); err != nil {
					return err
				}
				for _, w := range result.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "request file (- for stdin)")
	return cmd
}

func validateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Dry-run a publish request without contacting the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(file)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e := engine.Engine{Config: cfg}
			preview := e.DryRun(req)
			if err := printJSONOrTable(preview); err != nil {
				return err
			}
			if !preview.Valid {
				return fmt.Errorf("request is invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "request file (- for stdin)")
	return cmd
}

func taxonomyCmd() *cobra.Command {
	taxRoot := &cobra.Command{Use: "taxonomy", Short: "Work with category hierarchies"}

	var file string
	var maxDepth int
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a category hierarchy from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if file == "-" || file == "" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			var cats []taxonomy.Category
			if err := json.Unmarshal(data, &cats); err != nil {
				return fmt.Errorf("parse categories: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e := engine.Engine{Config: cfg}
			report := e.CheckHierarchy(cats, maxDepth)
			if viper.GetBool("json") {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Path", "Slug"})
				for _, term := range report.Terms {
					tw.AppendRow(table.Row{term.ID, term.Path, term.Slug})
				}
				tw.Render()
				for _, w := range report.Warnings {
					fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Name, w.Message)
				}
				for _, issue := range report.Errors {
					fmt.Fprintf(os.Stderr, "error: %s: %s\n", issue.Name, issue.Message)
				}
			}
			if !report.Valid {
				return fmt.Errorf("hierarchy is invalid")
			}
			return nil
		},
	}
	check.Flags().StringVarP(&file, "file", "f", "-", "categories file (- for stdin)")
	check.Flags().IntVar(&maxDepth, "max-depth", 0, "depth limit (defaults to config)")
	taxRoot.AddCommand(check)
	return taxRoot
}

func statusCmd() *cobra.Command {
	var postID int64
	var to, reason string
	var noValidate bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Update a published post's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if postID <= 0 {
				return fmt.Errorf("--post required")
			}
			if to == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.UpdateStatus(ctx, engine.StatusUpdateOptions{
					PostID:             postID,
					NewStatus:          to,
					Reason:             reason,
					ChangedBy:          viper.GetString("actor-id"),
					ValidateTransition: !noValidate,
					IncludeMetadata:    true,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	cmd.Flags().Int64Var(&postID, "post", 0, "post id")
	cmd.Flags().StringVar(&to, "to", "", "target status (draft, publish, private)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the change")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "skip the advisory transition check")
	return cmd
}

func statusesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "List known post statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				var displays []domain.StatusDisplay
				for _, s := range status.All {
					displays = append(displays, status.Display(s))
				}
				return printJSON(displays)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Status", "Label", "Description"})
			for _, s := range status.All {
				d := status.Display(s)
				tw.AppendRow(table.Row{d.Status, d.Icon + " " + d.Label, d.Description})
			}
			tw.Render()
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List locally recorded publishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				records, err := r.ListPublishes(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Post", "Title", "Status", "Warnings", "Published At"})
				for _, rec := range records {
					tw.AppendRow(table.Row{rec.PostID, rec.Title, rec.Status, warningCount(rec.WarningsJSON), rec.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max rows")
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	var evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	logRoot.AddCommand(tail)
	return logRoot
}

func keyCmd() *cobra.Command {
	keyRoot := &cobra.Command{Use: "key", Short: "Manage API keys"}

	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			raw, err := newAPIKey()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The raw key is shown exactly once; only its hash is stored.
				fmt.Println(raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "key label")
	keyRoot.AddCommand(create)

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	keyRoot.AddCommand(list)
	return keyRoot
}

func configCmd() *cobra.Command {
	cfgRoot := &cobra.Command{Use: "config", Short: "Manage configuration"}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example pressgate.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cfgRoot.AddCommand(initCmd)

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	cfgRoot.AddCommand(check)
	return cfgRoot
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Migrate(conn)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.ErrOrStderr(), "applied migration %s\n", name)
			}
			e := engine.New(conn, newClient(cfg), cfg)

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Disabled: noAuth}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = os.Getenv("PRESSGATE_JWT_SECRET")
			}
			if !authCfg.Disabled && authCfg.JWTSecret == "" {
				return fmt.Errorf("PRESSGATE_JWT_SECRET is required unless --no-auth is set")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Pressgate API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "disable authentication (loopback use only)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

func newClient(cfg *config.Config) *wp.Client {
	return wp.New(cfg.WordPress.BaseURL, cfg.WordPress.Username, cfg.WordPress.AppPassword, cfg.WordPress.Timeout.Std())
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, newClient(cfg), cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func readRequest(file string) (domain.PublishRequest, error) {
	var req domain.PublishRequest
	var data []byte
	var err error
	if file == "-" || file == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse request: %w", err)
	}
	return req, nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "pg_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

func warningCount(warningsJSON string) int {
	if warningsJSON == "" {
		return 0
	}
	var warnings []string
	if err := json.Unmarshal([]byte(warningsJSON), &warnings); err != nil {
		return 0
	}
	return len(warnings)
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

const exampleConfig = `wordpress:
  base_url: https://example.com
  username: ${WP_USERNAME}
  app_password: ${WP_APP_PASSWORD}
  timeout: 30s

slug:
  max_length: 200
  reserved_suffix: -term

taxonomy:
  max_depth: 10
  max_name_length: 200
  max_description_length: 1000

media:
  fetch_timeout: 30s
  upload_timeout: 60s
  max_concurrency: 4
  max_bytes: 10485760

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  jwt_secret: ${PRESSGATE_JWT_SECRET}

# webhooks:
#   - url: https://hooks.example.com/pressgate
#     secret: ${WEBHOOK_SECRET}
#     events: [publish.completed]
`
