package cmd

import (
	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/ui"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List the teams the API key can access",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		client, err := authedClient(creds)
		if err != nil {
			return fail(cmd, err)
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()

		teams, err := client.Teams(ctx)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).JSON(teams)
		}

		current, _ := creds.TeamID()
		for _, t := range teams {
			marker := "  "
			if t.ID == current {
				marker = ui.Success.Render("* ")
			}
			printf(cmd, "%s%-8s %s %s\n", marker, ui.Identifier.Render(t.Key), t.Name, ui.Muted.Render(t.ID))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(teamsCmd)
}
