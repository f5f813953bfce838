package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deusflow/sportsdesk/internal/app"
	"github.com/deusflow/sportsdesk/internal/config"
	"github.com/deusflow/sportsdesk/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

// loadConfig reads the config with load and starts the process logger.
func loadConfig(load func(string) (*config.Config, error)) error {
	var err error
	cfg, err = load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "sportsdesk",
	Short: "Football news desk: ingest feeds, judge articles, post the best",
	Long: `sportsdesk polls football RSS feeds, fetches and judges each new article
with an LLM, and posts the best of them to Telegram and/or X within a daily quota.

Example usage:
  sportsdesk run                 # Poll forever
  sportsdesk once                # Run a single cycle and exit
  sportsdesk stats --json        # Show today's counts`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll feeds until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(config.Load); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Monitoring.Enabled {
			srv := newMonitor(cfg.Monitoring.Addr, a, logger.Component("monitor"))
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("monitoring server error", "error", err)
				}
			}()
			defer srv.Stop(context.Background())
		}

		err = a.Run(ctx)
		logger.Info("shutting down", "error", err)
		return err
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one ingest and batch cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(config.Load); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report := a.RunOnce(ctx)
		fmt.Printf("cycle %s: %d entries, %d new, %d scored, %d instant, %d batch, %d posted today\n",
			report.ID, report.Entries, report.New, report.Scored, report.Instant, report.Batch, report.PostedToday)
		if len(report.Errors) > 0 {
			return fmt.Errorf("cycle finished with %d errors", len(report.Errors))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's posting summary",
	Long: `stats reads today's counts from the store without building LLM or
channel clients. Badger allows a single writer, so while "run" is active
point --url at its monitoring server instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		if url, _ := cmd.Flags().GetString("url"); url != "" {
			return remoteStats(cmd.Context(), url, os.Stdout)
		}
		if err := loadConfig(config.LoadStore); err != nil {
			return err
		}

		store, err := app.OpenReadOnlyStore(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		s, err := app.Summarize(cmd.Context(), store, cfg, time.Now())
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		fmt.Printf("day:        %s\n", s.Day)
		fmt.Printf("posted:     %d\n", s.Posted)
		fmt.Printf("remaining:  %d\n", s.Remaining)
		fmt.Printf("candidates: %d\n", s.Candidates)
		return nil
	},
}

// remoteStats copies a running instance's /stats document to w.
func remoteStats(ctx context.Context, base string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/stats", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("fetch stats: " + resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultPath+")")
	statsCmd.Flags().Bool("json", false, "output as JSON")
	statsCmd.Flags().String("url", "", "read /stats from a running instance, e.g. http://localhost:8080")

	rootCmd.AddCommand(runCmd, onceCmd, statsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
