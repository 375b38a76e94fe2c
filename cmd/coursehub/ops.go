package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"coursehub/internal/app"
	"coursehub/internal/config"
	"coursehub/internal/domain"
	"coursehub/internal/events"
	"coursehub/internal/jobs"
	"coursehub/internal/migrate"
	"coursehub/internal/observability"
	"coursehub/internal/repo"
	"coursehub/internal/server"
)

var version = "dev"

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage workspace config"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default coursehub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate coursehub.yml (or --file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}
	validate.Flags().StringVar(&file, "file", "", "config file to validate")

	useActor := &cobra.Command{
		Use:   "use-actor <id>",
		Short: "Set the default actor for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := strings.TrimSpace(args[0])
			if actorID == "" {
				return fmt.Errorf("actor id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "COURSEHUB_ACTOR_ID", actorID); err != nil {
				return err
			}
			fmt.Printf("Set COURSEHUB_ACTOR_ID=%s in %s/.env\n", actorID, workspace)
			return nil
		},
	}

	cmd.AddCommand(initCmd, show, validate, useActor)
	return cmd
}

func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				applied, err := migrate.Version(a.DB)
				if err != nil {
					return err
				}
				fmt.Printf("Database at schema version %d\n", applied)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.Repo.LatestEvents(ctx, nil, n, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, evt := range items {
					rows = append(rows, table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID})
				}
				return printRows(items, table.Row{"ID", "TS", "Type", "Entity", "Entity ID", "Actor"}, rows)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.AddCommand(tail)
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := currentActor()
			if !actor.Authenticated() {
				return fmt.Errorf("--actor-id required")
			}
			secret, err := newSecret()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor.ID,
					Role:    role,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := a.Engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")
	create.Flags().StringVar(&role, "role", "", "role hint carried by the key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys (of --actor-id when set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.Repo.ListAPIKeys(ctx, nil, currentActor().ID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, k := range items {
					rows = append(rows, table.Row{k.ID, k.ActorID, k.Role, k.Name, k.CreatedAt})
				}
				return printRows(items, table.Row{"ID", "Actor", "Role", "Name", "Created"}, rows)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, nil, args[0])
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func newSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "chk_" + hex.EncodeToString(b), nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with the certificate reconciler and event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOrDefault(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			log, err := newLogger(cfg.Logging.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := observability.InitTracing(ctx, log, observability.TracingConfig{
				Enabled:     cfg.Tracing.Enabled,
				ServiceName: "coursehub",
				Version:     version,
			})
			if err != nil {
				return err
			}
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(tctx)
			}()

			a, err := app.Open(ctx, workspace, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				DevLogin:               cfg.Auth.DevLogin,
				TokenTTL:               cfg.Auth.TokenTTL,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("COURSEHUB_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Log: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			var sched *jobs.Scheduler
			if schedule := strings.TrimSpace(cfg.Certificates.ReconcileSchedule); schedule != "" {
				if sched, err = jobs.New(schedule, cfg.Certificates.ReconcileBatch, a.Engine, log.With("component", "scheduler")); err != nil {
					return err
				}
			}
			var relay *events.Relay
			if url := strings.TrimSpace(cfg.Events.RedisURL); url != "" {
				client, err := events.NewRedisClient(ctx, url)
				if err != nil {
					return err
				}
				defer client.Close()
				relay = &events.Relay{
					Repo:     a.Engine.Repo,
					Client:   client,
					Channel:  cfg.Events.Channel,
					Interval: cfg.Events.PollInterval,
					Batch:    cfg.Events.Batch,
					Log:      log.With("component", "relay"),
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("serving coursehub api", "addr", addr, "base_path", basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			if sched != nil {
				g.Go(func() error {
					sched.Start()
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					sched.Stop(sctx)
					return nil
				})
			}
			if relay != nil {
				g.Go(func() error {
					relay.Run(gctx)
					return nil
				})
			}

			fmt.Printf("Serving coursehub API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}
