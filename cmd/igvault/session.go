package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igvault/pkg/auth"
	"igvault/pkg/config"
	"igvault/pkg/instagram"
	"igvault/pkg/logger"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored Instagram session credentials",
	Long: `Store, inspect or remove the Instagram session used for story fetching.

Credentials are kept in the system keychain when available, with an
encrypted file fallback. The sessionid and csrftoken cookie values can
be copied from a logged-in browser session.`,
}

var sessionSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store session credentials",
	Long: `Prompt for the sessionid and csrftoken cookie values and store them.

To find the cookies, log in to instagram.com in a browser, open the
developer tools and copy the values from the Cookies panel.`,
	Example: `  igvault session set`,
	Run:     runSessionSet,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored credentials and probe the session",
	Run:   runSessionStatus,
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Remove stored credentials",
	Run:   runSessionRm,
}

func init() {
	sessionCmd.AddCommand(sessionSetCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionSet(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Credential store unavailable:", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Instagram username (optional): ")
	username, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read username:", err)
		os.Exit(1)
	}
	username = strings.TrimSpace(username)

	fmt.Println("\nEnter your cookie values (they will be hidden as you type):")

	fmt.Print("sessionid cookie value: ")
	sessionID, err := readSecret()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read session ID:", err)
		os.Exit(1)
	}
	if sessionID == "" {
		fmt.Fprintln(os.Stderr, "Session ID is required")
		os.Exit(1)
	}

	fmt.Print("csrftoken cookie value: ")
	csrfToken, err := readSecret()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read CSRF token:", err)
		os.Exit(1)
	}
	if csrfToken == "" {
		fmt.Fprintln(os.Stderr, "CSRF token is required")
		os.Exit(1)
	}

	creds := &auth.Credentials{
		Username:  username,
		SessionID: sessionID,
		CSRFToken: csrfToken,
	}
	if err := manager.Save(creds); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to store credentials:", err)
		os.Exit(1)
	}

	fmt.Println("\nCredentials stored.")
	fmt.Println("Run 'igvault session status' to verify they work.")
}

func runSessionStatus(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Credential store unavailable:", err)
		os.Exit(1)
	}

	creds, err := manager.Load()
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			fmt.Println("No credentials stored. Run 'igvault session set' first.")
			return
		}
		fmt.Fprintln(os.Stderr, "Failed to load credentials:", err)
		os.Exit(1)
	}

	masked := creds.Sanitize()
	if masked.Username != "" {
		fmt.Println("Username:   ", masked.Username)
	}
	fmt.Println("Session ID: ", masked.SessionID)
	fmt.Println("CSRF token: ", masked.CSRFToken)
	if !creds.SavedAt.IsZero() {
		fmt.Println("Saved at:   ", creds.SavedAt.Format(time.RFC3339))
	}

	cfg := config.DefaultConfig()
	cfg.Instagram.SessionID = creds.SessionID
	cfg.Instagram.CSRFToken = creds.CSRFToken
	if creds.UserAgent != "" {
		cfg.Instagram.UserAgent = creds.UserAgent
	}

	cfg.Logging.Level = "error"
	_ = logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	client := instagram.NewClient(&cfg.Instagram, log)
	session := instagram.NewSession(client, log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Instagram.APITimeout)
	defer cancel()

	fmt.Print("\nProbing session... ")
	if err := session.Keepalive(ctx); err != nil {
		fmt.Println("failed")
		fmt.Fprintln(os.Stderr, "Session check failed:", err)
		os.Exit(1)
	}

	status := session.Status()
	fmt.Println("ok")
	if status.Username != "" {
		fmt.Println("Logged in as:", status.Username)
	}
}

func runSessionRm(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Credential store unavailable:", err)
		os.Exit(1)
	}

	if err := manager.Clear(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to remove credentials:", err)
		os.Exit(1)
	}
	fmt.Println("Credentials removed.")
}

// readSecret reads a value from stdin without echoing.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
