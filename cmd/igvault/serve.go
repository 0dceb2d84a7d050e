package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igvault/internal/httpapi"
	"igvault/pkg/auth"
	"igvault/pkg/config"
	"igvault/pkg/instagram"
	"igvault/pkg/logger"
	"igvault/pkg/optimizer"
	"igvault/pkg/ratelimit"
	"igvault/pkg/relay"
	"igvault/pkg/service"
	"igvault/pkg/store"
)

var (
	serveListen    string
	serveSessionID string
	serveCSRFToken string
	serveFrontend  string
	serveDBFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the web API on the configured listen address.

The server exposes story, post and result endpoints, a media relay for
Instagram CDN URLs and an image optimizer. Session credentials are read
from the credential store unless provided via flags or environment.`,
	Example: `  igvault serve
  igvault serve --listen 127.0.0.1:9000
  igvault serve --frontend ./frontend --db ./data/igvault.db`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (host:port)")
	serveCmd.Flags().StringVar(&serveSessionID, "session-id", "", "Instagram session ID")
	serveCmd.Flags().StringVar(&serveCSRFToken, "csrf-token", "", "Instagram CSRF token")
	serveCmd.Flags().StringVar(&serveFrontend, "frontend", "", "directory with static frontend files")
	serveCmd.Flags().StringVar(&serveDBFile, "db", "", "result database file (\":memory:\" for ephemeral)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	flags := map[string]interface{}{
		"listen":     serveListen,
		"session-id": serveSessionID,
		"csrf-token": serveCSRFToken,
		"frontend":   serveFrontend,
		"db":         serveDBFile,
		"log-level":  logLevel,
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	log := logger.GetLogger()

	loadStoredCredentials(cfg, log)

	client := instagram.NewClient(&cfg.Instagram, log)
	session := instagram.NewSession(client, log)

	results, err := store.Open(cfg.Server.DBFile, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open result store")
	}
	defer results.Close()

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	svc := service.New(client, limiter, results, cfg, log)
	rly := relay.New(&cfg.Proxy, cfg.Instagram.UserAgent, log)
	opt := optimizer.New(&cfg.Optimizer, log)

	server := httpapi.New(cfg, svc, session, rly, opt, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if client.HasSession() {
		go session.RunKeepalive(ctx, cfg.Instagram.KeepaliveInterval)
	} else {
		log.Warn("No session credentials configured, stories will be unavailable")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("Shutting down")
		cancel()
		server.Stop()
	}()

	log.WithFields(map[string]interface{}{
		"listen":  cfg.Server.Listen,
		"db_file": cfg.Server.DBFile,
	}).Info("Starting igvault server")

	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
	log.Info("Server stopped")
}

// loadStoredCredentials fills in session credentials from the credential
// store when the config did not provide them.
func loadStoredCredentials(cfg *config.Config, log logger.Logger) {
	if cfg.Instagram.SessionID != "" && cfg.Instagram.CSRFToken != "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
		return
	}

	creds, err := manager.Load()
	if err != nil {
		if !errors.Is(err, auth.ErrCredentialsNotFound) {
			log.WithError(err).Warn("Failed to load stored credentials")
		}
		return
	}

	if cfg.Instagram.SessionID == "" {
		cfg.Instagram.SessionID = creds.SessionID
	}
	if cfg.Instagram.CSRFToken == "" {
		cfg.Instagram.CSRFToken = creds.CSRFToken
	}
	if creds.UserAgent != "" {
		cfg.Instagram.UserAgent = creds.UserAgent
	}
	log.WithField("username", creds.Username).Debug("Loaded stored session credentials")
}
