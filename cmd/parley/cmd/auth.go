package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to the platform",
	Long: `Sign in with OAuth and store the resulting token on disk.

A browser window opens for the platform's consent page; the token is
captured by a short-lived local callback server and persisted for later
commands. Set PARLEY_CLIENT_ID and PARLEY_CLIENT_SECRET to your
integration's credentials before running this.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	_, provider, err := newAuthProvider(logger)
	if err != nil {
		return err
	}

	if err := provider.Authenticate(cmd.Context(), openBrowser); err != nil {
		return err
	}

	fmt.Println("Signed in. Token stored.")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	_, provider, err := newAuthProvider(logger)
	if err != nil {
		return err
	}

	if err := provider.Logout(); err != nil {
		return err
	}

	fmt.Println("Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, provider, err := newAuthProvider(logger)
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg, provider, logger)
	if err != nil {
		return err
	}

	me, err := client.Me(cmd.Context())
	if err != nil {
		return err
	}

	logger.Debug("resolved identity", zap.String("person_id", me.ID))

	fmt.Printf("%s", me.DisplayName)
	if len(me.Emails) > 0 {
		fmt.Printf(" <%s>", me.Emails[0])
	}
	fmt.Println()
	return nil
}

// openBrowser launches the system browser at the given URL.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
