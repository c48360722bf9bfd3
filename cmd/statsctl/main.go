// Command statsctl is the operator CLI for match statistics.
//
// Usage:
//
//	statsctl gameend Alice 8 Alice:uuid-a:kills=7:deaths=1 Bob:uuid-b:kills=2
//	statsctl gameend Alice --game-addr http://bedwars-3:8001
//	statsctl broker --addr :9090
//	statsctl migrate
//	statsctl show 0b6c6f0e-5f7e-4b53-9a49-3d3a1f3c1a22
//	statsctl recent --limit 5
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/matchstats/internal/api/handler"
	"github.com/albapepper/matchstats/internal/app"
	"github.com/albapepper/matchstats/internal/config"
	"github.com/albapepper/matchstats/internal/game"
	"github.com/albapepper/matchstats/internal/render"
	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/store"
	"github.com/albapepper/matchstats/internal/transport"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "statsctl",
		Short:        "Match statistics operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(gameEndCmd())
	root.AddCommand(brokerCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(showCmd())
	root.AddCommand(recentCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// gameend command
// --------------------------------------------------------------------------

func gameEndCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "gameend <winner> [playerCount] [name:id:stat=value[:stat=value]...]...",
		Short: "End the running match on a game service",
		Long: "Sends the gameend arguments to a game service. Stat tokens are name:uuid:k=v:k=v... " +
			"or the legacy name:uuid:kills:deaths:assists:score form. Without tokens the game " +
			"service uses its scoreboard.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate locally first so usage errors never reach the server.
			parsed, err := game.ParseArgs(args)
			if err != nil {
				return err
			}
			for _, w := range parsed.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), w)
			}
			if n := len(parsed.Players); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Accepted %d stat entries\n", n)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := postGameEnd(ctx, addr, args)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			if !res.Published {
				return fmt.Errorf("match %s ended but was not published: %s", res.MatchID, res.PublishError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "game-addr", "http://localhost:8001", "Game service base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

func postGameEnd(ctx context.Context, addr string, args []string) (game.Result, error) {
	body, err := json.Marshal(game.Request{Args: args})
	if err != nil {
		return game.Result{}, err
	}
	url := strings.TrimRight(addr, "/") + "/api/v1/gameend"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return game.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return game.Result{}, fmt.Errorf("contact game service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return game.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return game.Result{}, fmt.Errorf("game service returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	var res game.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return game.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

func printResult(w io.Writer, res game.Result) {
	fmt.Fprintf(w, "Match %s (%s) won by %s, %d players, %d stat entries from %s\n",
		res.MatchID, res.GameName, res.Winner, res.PlayerCount, res.Entries, res.Source)
	if res.Published {
		fmt.Fprintln(w, "Statistics sent to the lobby")
	}
	if res.Teleporting > 0 {
		fmt.Fprintf(w, "Sending %d players to the lobby\n", res.Teleporting)
	}
}

// --------------------------------------------------------------------------
// broker command
// --------------------------------------------------------------------------

func brokerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the websocket message broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			broker := transport.NewBroker(logger)
			mux := http.NewServeMux()
			mux.Handle("/ws", broker)
			mux.HandleFunc("/health", handler.HealthCheck)
			srv := &http.Server{
				Addr:        addr,
				Handler:     mux,
				ReadTimeout: 10 * time.Second,
				IdleTimeout: 60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info("Starting message broker", "addr", addr, "path", "/ws")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			logger.Info("Shutting down broker...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address")
	return cmd
}

// --------------------------------------------------------------------------
// store commands
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the statistics tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				logger.Info("Statistics store migrated", "driver", cfg.StoreDriver)
				return nil
			})
		},
	}
}

func showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <matchID>",
		Short: "Render a stored match the way the lobby shows it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				rec, err := st.Get(ctx, stats.MatchID(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(rec)
				}
				layout, err := config.LoadDisplay(cfg.DisplayConfigFile)
				if err != nil {
					logger.Warn("Display configuration ignored, using defaults", "error", err)
				}
				for _, line := range render.New(layout.Templates).Render(rec) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored record as JSON")
	return cmd
}

func recentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				recs, err := st.Recent(ctx, limit)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					fmt.Fprintln(cmd.OutOrStdout(), render.Summary(rec))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultRecentLimit, "Number of matches")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runStore handles config loading, store setup, and context cancellation.
// The store is migrated before fn runs.
func runStore(fn func(ctx context.Context, cfg *config.Config, st store.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load(config.RoleTool)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := app.OpenPool(ctx, cfg, config.RoleTool, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	st, err := app.OpenStore(ctx, cfg, pool)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return fn(ctx, cfg, st)
}
