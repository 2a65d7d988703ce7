package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"artsync/pkg/auth"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/site"
	"artsync/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage site sessions",
	Long: `Manage stored site sessions.

Session cookies are stored using:
  - System keychain (when available)
  - Encrypted file with scrypt key derivation
  - ARTSYNC_COOKIE environment variable (read only)

Never share your session cookie or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store a session cookie",
	Long: `Store the session cookie of a logged-in browser. The cookie is checked
against the site before it is saved.`,
	Example: `  artsync auth login
  artsync auth login myname`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the current session is logged in",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var accountsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove a stored account",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, statusCmd, accountsCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return exitCode(err)
	}
	manager, err := auth.NewManager()
	if err != nil {
		return exitCode(apperrors.Wrap(apperrors.ErrorTypeAuth, err, "credential manager"))
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowCookieExtractionGuide(ui.Out, cfg.Site.BaseURL)
	fmt.Fprintln(ui.Out)

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Fprint(ui.Out, "Account name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return exitCode(apperrors.NewConfig(fmt.Errorf("read account name: %w", err)))
		}
		username = strings.TrimSpace(input)
	}
	if username == "" {
		ui.PrintError("An account name is required")
		return &exitError{code: apperrors.ExitConfig}
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Fprintf(ui.Out, "Account '%s' already exists. Replace its session? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Fprint(ui.Out, "PHPSESSID cookie value (hidden): ")
	cookie, err := readSecret(reader)
	if err != nil {
		return exitCode(apperrors.NewConfig(fmt.Errorf("read cookie: %w", err)))
	}
	cookie = auth.NormalizeCookie(cookie)
	if cookie == "" {
		ui.PrintError("The cookie cannot be empty")
		return &exitError{code: apperrors.ExitAuth}
	}

	fmt.Fprint(ui.Out, "User Agent (Enter for default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	siteCfg := cfg.Site
	if userAgent != "" {
		siteCfg.UserAgent = userAgent
	}
	client := site.NewClient(siteCfg, cfg.Network, log)
	client.SetCookie(cookie)
	if err := client.VerifySession(cmd.Context()); err != nil {
		ui.PrintError("The site did not accept this session", err)
		return &exitError{code: apperrors.ExitAuth}
	}

	account := &auth.Account{
		Username:      username,
		SessionCookie: cookie,
		UserAgent:     userAgent,
		LastModified:  time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return exitCode(apperrors.Wrap(apperrors.ErrorTypeAuth, err, "store credentials"))
	}
	ui.PrintSuccess("Session stored for " + username)
	fmt.Fprintln(ui.Out, "\nThe most recently stored account is used by default.")
	fmt.Fprintf(ui.Out, "Use --account %s to pick it explicitly.\n", username)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return exitCode(err)
	}
	cookie, err := sessionCookie(cfg, log)
	if err != nil {
		ui.PrintError("No session", err)
		return &exitError{code: apperrors.ExitAuth}
	}
	client := site.NewClient(cfg.Site, cfg.Network, log)
	client.SetCookie(cookie)
	if err := client.VerifySession(cmd.Context()); err != nil {
		ui.PrintError("Session rejected", err)
		return exitCode(err)
	}
	ui.PrintSuccess("Logged in to " + cfg.Site.BaseURL)
	return nil
}

func runAccounts(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return exitCode(apperrors.Wrap(apperrors.ErrorTypeAuth, err, "credential manager"))
	}
	accounts, err := manager.List()
	if err != nil {
		return exitCode(apperrors.Wrap(apperrors.ErrorTypeAuth, err, "list accounts"))
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'artsync auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	for i, account := range accounts {
		s := auth.SanitizeAccount(account)
		fmt.Fprintf(ui.Out, "%d. %s\n", i+1, s.Username)
		fmt.Fprintf(ui.Out, "   Cookie: %s\n", s.SessionCookie)
		if s.UserAgent != "" {
			fmt.Fprintf(ui.Out, "   User Agent: %s\n", s.UserAgent)
		}
		fmt.Fprintf(ui.Out, "   Saved: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return exitCode(apperrors.Wrap(apperrors.ErrorTypeAuth, err, "credential manager"))
	}
	if err := manager.Delete(args[0]); err != nil {
		ui.PrintError("Failed to remove account", err)
		return &exitError{code: apperrors.ExitAuth}
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(ui.Out)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
