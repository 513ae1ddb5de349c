package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shutterscope/shutterscope/internal/client"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a shutterscope server",
	Long: `Authenticate with a shutterscope server using a username and password.
The authentication token is stored in ~/.shutterscope/token with 0600 permissions.

Example:
  shutterscope login --server https://scope.example.com --username admin`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Username for authentication")
	loginCmd.MarkFlagRequired("username")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if serverFlag == "" {
		return fmt.Errorf("--server is required")
	}
	server, err := validateServer(serverFlag)
	if err != nil {
		return err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	fmt.Fprintf(os.Stderr, "Authenticating with %s...\n", server)
	resp, err := client.New(server).Login(cmd.Context(), loginUsername, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := SaveToken(TokenData{Token: resp.Token, Server: server}); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	if err := SaveConfig(Config{Server: server, Username: loginUsername}); err != nil {
		// Non-fatal: token is already saved
		fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Logged in as %s (%s)\n", resp.Username, resp.Role)
	fmt.Fprintf(os.Stderr, "  Token stored in ~/.shutterscope/token\n")
	return nil
}

// readPassword prompts for a password without echoing input.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Non-interactive: read from stdin (piped input)
	var password string
	_, err := fmt.Fscanln(os.Stdin, &password)
	if err != nil {
		return "", err
	}
	return password, nil
}
