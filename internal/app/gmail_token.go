package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"helpdesk-mail-go/internal/config"
	"helpdesk-mail-go/internal/fetcher"
)

// newGmailTokenCommand runs the OAuth2 consent flow for the Gmail discovery
// mailbox and prints the refresh token to configure.
func newGmailTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gmail-token",
		Short: "Obtain a Gmail refresh token for the discovery mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Discovery.ClientID == "" || cfg.Discovery.ClientSecret == "" {
				return fmt.Errorf("please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET")
			}

			oauthConfig := fetcher.OAuthConfig(cfg.Discovery)
			out := cmd.OutOrStdout()

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Fprintf(out, "Go to the following link in your browser: %v\n", authURL)
			fmt.Fprintln(out, "\nAfter authorization, you'll be redirected to a URL. Copy the 'code' parameter from that URL.")

			var authCode string
			fmt.Fprint(out, "\nEnter the authorization code: ")
			if _, err := fmt.Fscan(cmd.InOrStdin(), &authCode); err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}

			tok, err := oauthConfig.Exchange(cmd.Context(), strings.TrimSpace(authCode))
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Fprintf(out, "\nRefresh Token: %s\n", tok.RefreshToken)
			fmt.Fprintf(out, "Expiry: %v\n", tok.Expiry)
			fmt.Fprintln(out, "\nAdd the refresh token to your environment variables:")
			fmt.Fprintf(out, "export GMAIL_REFRESH_TOKEN=%q\n", tok.RefreshToken)
			return nil
		},
	}
}
