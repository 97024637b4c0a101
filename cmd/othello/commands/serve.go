package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"othello/bot"
	"othello/config"
	"othello/match"
	"othello/server"
)

var (
	serveListen  string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the match server",
	Long: `Start the HTTP and websocket server.

Bots uploaded through the API are stored under the data directory together
with the quarantine folder and the security log.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveDataDir != "" {
		cfg.DataDir = serveDataDir
	}
	setupLogging(cfg.LogLevel)

	catalog, err := bot.NewCatalog(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening bot catalog: %w", err)
	}
	registry := match.NewRegistry(catalog)
	registry.SetDefaultTimeouts(cfg.InitTimeoutDuration(), cfg.MoveTimeoutDuration())

	srv := server.New(cfg.Listen, catalog, registry)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
