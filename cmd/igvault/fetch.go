package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"igvault/internal/downloader"
	"igvault/pkg/config"
	"igvault/pkg/instagram"
	"igvault/pkg/logger"
	"igvault/pkg/media"
	"igvault/pkg/ratelimit"
	"igvault/pkg/service"
	"igvault/pkg/storage"
	"igvault/pkg/store"
)

var (
	fetchSessionID string
	fetchCSRFToken string
	fetchOutput    string
	fetchDB        string
	fetchPosts     bool
	fetchStories   bool
	fetchCached    bool
	fetchCount     int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <username>",
	Short: "Download stories or posts for a profile to disk",
	Long: `Fetch resolves the given username, lists its stories or recent posts
and downloads each media file into the output directory. Files that
already exist are skipped, so repeated runs only pick up new media.

Every fetch records its result set in the local database, so --cached
downloads whatever the last fetch (or API search) returned without
contacting Instagram again.`,
	Example: `  igvault fetch natgeo
  igvault fetch natgeo --posts --count 50
  igvault fetch natgeo --cached
  igvault fetch natgeo --output ./archive/natgeo`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSessionID, "session-id", "", "Instagram session ID")
	fetchCmd.Flags().StringVar(&fetchCSRFToken, "csrf-token", "", "Instagram CSRF token")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "output directory for downloads")
	fetchCmd.Flags().StringVar(&fetchDB, "db", "", "path to the result database file")
	fetchCmd.Flags().BoolVar(&fetchCached, "cached", false, "download the last stored result set instead of fetching")
	fetchCmd.Flags().BoolVar(&fetchPosts, "posts", false, "download recent posts instead of stories")
	fetchCmd.Flags().BoolVar(&fetchStories, "stories", false, "download stories (default)")
	fetchCmd.Flags().IntVar(&fetchCount, "count", 0, "maximum number of posts to download")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) {
	username := args[0]

	flags := map[string]interface{}{
		"session-id": fetchSessionID,
		"csrf-token": fetchCSRFToken,
		"output":     fetchOutput,
		"db":         fetchDB,
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
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)

	results, err := store.Open(cfg.Server.DBFile, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open result database:", err)
		os.Exit(1)
	}
	defer results.Close()

	svc := service.New(client, limiter, results, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		profile *media.Profile
		items   []media.Item
	)
	switch {
	case fetchCached:
		var rs *store.ResultSet
		rs, items, err = svc.Results(username)
		if rs != nil {
			profile = &rs.Profile
		}
	case fetchPosts:
		profile, items, err = svc.GetPosts(ctx, username, fetchCount)
	default:
		profile, items, err = svc.GetStories(ctx, username)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Fetch failed:", err)
		os.Exit(1)
	}

	if len(items) == 0 {
		fmt.Printf("No media found for @%s\n", profile.Username)
		return
	}

	manager, err := storage.NewManager(cfg.Download.OutputDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to prepare output directory:", err)
		os.Exit(1)
	}

	fmt.Printf("Downloading %d items for @%s to %s\n", len(items), profile.Username, manager.GetOutputDir())

	seq := downloader.NewSequential(client, manager, cfg.Download.ItemDelay, log)
	summary, err := seq.Run(ctx, profile.Username, items)

	fmt.Printf("Saved %d, skipped %d, failed %d\n", summary.Saved, summary.Skipped, len(summary.Failures))
	for _, f := range summary.Failures {
		fmt.Printf("  %s: %s\n", f.ItemID, f.Reason)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Download aborted:", err)
		os.Exit(1)
	}
	if summary.Saved == 0 && len(summary.Failures) > 0 {
		os.Exit(1)
	}
}
