package cmd

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rterm/pkg/client"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token",
	Long: `Store the JWT used to authenticate with the rterm server. The token is
read from the global --token flag or prompted for, checked for expiry, and saved to the
config file together with the server endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			fmt.Print("Token: ")
			tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = strings.TrimSpace(string(tokenBytes))
			fmt.Println()
		}
		if token == "" {
			return errors.New("token is required")
		}

		if err := client.CheckToken(token); err != nil {
			return err
		}

		cfg.Auth.Token = token
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Println("Token saved to config.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Server: %s\n", cfg.Server.Endpoint)
		if cfg.Auth.Token == "" {
			fmt.Fprintln(out, "Not authenticated. Run 'rterm auth login' to store a token.")
			return nil
		}

		expiresAt, err := client.TokenExpiry(cfg.Auth.Token)
		if err != nil || expiresAt.IsZero() {
			fmt.Fprintln(out, "Status: token set (no expiry)")
			return nil
		}

		fmt.Fprintf(out, "Token expires: %s\n", expiresAt.Local().Format("2006-01-02 15:04:05"))
		if time.Now().After(expiresAt) {
			fmt.Fprintln(out, "Status: ❌ Token is expired")
		} else if time.Until(expiresAt) < 5*time.Minute {
			fmt.Fprintf(out, "Status: ⚠️  Token expires in %v\n", time.Until(expiresAt).Round(time.Second))
		} else {
			fmt.Fprintf(out, "Status: ✅ Token valid for %v\n", time.Until(expiresAt).Round(time.Second))
		}
		return nil
	},
}

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(authCmd)
}
