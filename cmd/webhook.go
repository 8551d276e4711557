package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/linear"
	"github.com/toba/linsync/internal/ui"
	"github.com/toba/linsync/internal/webhook"
)

var (
	webhookAddr  string
	webhookPath  string
	webhookLabel string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Receive Linear webhooks",
}

var webhookServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver",
	Long: `Listens for Linear webhook deliveries and pulls each changed issue into the
local task list. Deliveries are verified against the secret stored by
'linsync webhook register'. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return err
		}
		secret, err := creds.WebhookSecret()
		if err != nil {
			return err
		}
		if secret == "" {
			log.Warn("no webhook secret stored; deliveries will not be verified")
		}

		store, err := openTasks()
		if err != nil {
			return err
		}
		defer store.Close()
		// Pick up edits made by other linsync commands while serving.
		if err := store.Watch(func() { log.Debug("task list reloaded") }); err != nil {
			log.WithError(err).Warn("watching task list; external edits will not be seen")
		}

		addr := webhookAddr
		if !cmd.Flags().Changed("addr") {
			addr = cfg.Webhook.Addr
		}
		path := webhookPath
		if !cmd.Flags().Changed("path") {
			path = cfg.Webhook.Path
		}

		recv := webhook.New(newEngine(creds, store),
			webhook.WithAddr(addr),
			webhook.WithPath(path),
			webhook.WithSecret(secret),
			webhook.WithLogger(log),
		)

		ctx, cancel := signalContext(cmd)
		defer cancel()
		if err := recv.Start(ctx); err != nil {
			return err
		}
		printf(cmd, "Listening on %s%s\n", recv.Addr(), path)
		err = recv.Wait()
		return errors.Join(err, recv.Stop())
	},
}

var webhookRegisterCmd = &cobra.Command{
	Use:   "register <url>",
	Short: "Register a webhook for the default team",
	Long: `Creates a Linear webhook that delivers Issue events for the default team to
<url>, using a freshly generated signing secret. The webhook id and secret are
stored with the credentials.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		client, err := authedClient(creds)
		if err != nil {
			return fail(cmd, err)
		}
		teamID, err := creds.TeamID()
		if err != nil {
			return fail(cmd, err)
		}
		secret, err := newSecret()
		if err != nil {
			return fail(cmd, err)
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()

		wh, err := client.CreateWebhook(ctx, linear.WebhookCreateInput{
			URL:           args[0],
			TeamID:        teamID,
			Secret:        secret,
			Label:         webhookLabel,
			ResourceTypes: []string{webhook.TypeIssue},
		})
		if err != nil {
			return fail(cmd, err)
		}
		if err := creds.SetWebhook(wh.ID, secret, wh.URL); err != nil {
			return fail(cmd, fmt.Errorf("webhook %s was created but not saved: %w", wh.ID, err))
		}

		if jsonOut {
			return out(cmd).JSON(wh)
		}
		printf(cmd, "%s Registered webhook %s\n", ui.Success.Render("✔"), ui.Muted.Render(wh.ID))
		printf(cmd, "  %s\n", wh.URL)
		return nil
	},
}

var webhookUnregisterCmd = &cobra.Command{
	Use:   "unregister",
	Short: "Delete the registered webhook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		c, err := creds.Load()
		if err != nil {
			return fail(cmd, err)
		}
		if c.WebhookID == "" {
			if jsonOut {
				return out(cmd).Message("No webhook registered")
			}
			printf(cmd, "No webhook registered\n")
			return nil
		}

		client, err := authedClient(creds)
		if err != nil {
			return fail(cmd, err)
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()

		if _, err := client.DeleteWebhook(ctx, c.WebhookID); err != nil && !linear.IsNotFound(err) {
			return fail(cmd, err)
		}
		if err := creds.ClearWebhook(); err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).Message("Webhook deleted")
		}
		printf(cmd, "Deleted webhook %s\n", ui.Muted.Render(c.WebhookID))
		return nil
	},
}

// newSecret returns 32 random bytes, hex encoded.
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func init() {
	webhookServeCmd.Flags().StringVar(&webhookAddr, "addr", "", "listen address (default from config)")
	webhookServeCmd.Flags().StringVar(&webhookPath, "path", "", "delivery path (default from config)")
	webhookRegisterCmd.Flags().StringVar(&webhookLabel, "label", "linsync", "webhook label in Linear")
	webhookCmd.AddCommand(webhookServeCmd, webhookRegisterCmd, webhookUnregisterCmd)
	rootCmd.AddCommand(webhookCmd)
}
