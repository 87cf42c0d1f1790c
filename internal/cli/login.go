package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/source"
	"github.com/nhle/applytrack/internal/source/email"
	"github.com/nhle/applytrack/internal/store"
	"github.com/nhle/applytrack/internal/ui/login"
)

var loginNoVerify bool

var loginCmd = &cobra.Command{
	Use:   "login <user-id>",
	Short: "Store a user's mailbox login and the provider API key",
	Long: `Ask for a user's IMAP login and, when the configured provider needs
one, its API key, then store both in the system keyring. The user is
registered if it does not exist yet.

The login is checked against the IMAP server unless --no-verify is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginNoVerify, "no-verify", false, "skip the IMAP connection check")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := args[0]

	provider := ""
	if classify.NeedsAPIKey(cfg.Provider.Name) {
		provider = cfg.Provider.Name
	}
	values, err := login.Prompt(provider)
	if err != nil {
		return err
	}
	creds := source.Credentials{Username: values.Username, Password: values.Password}

	if !loginNoVerify {
		adapter := email.NewAdapter(cfg.IMAP, creds, logger)
		err := adapter.ValidateConnection(ctx)
		_ = adapter.Close()
		if err != nil {
			return fmt.Errorf("checking login against %s: %w", cfg.IMAP.Host, err)
		}
	}

	ring, err := openCredentials()
	if err != nil {
		return err
	}
	if err := ring.SetIMAP(userID, creds); err != nil {
		return err
	}
	if values.APIKey != "" {
		if err := ring.SetAPIKey(provider, values.APIKey); err != nil {
			return err
		}
	}

	if _, err := st.GetUser(ctx, userID); errors.Is(err, store.ErrNotFound) {
		if err := st.UpsertUser(ctx, model.User{ID: userID, Email: values.Username}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved login for %s (%s)\n", userID, values.Username)
	return nil
}
