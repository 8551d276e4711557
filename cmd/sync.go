package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/syncer"
	"github.com/toba/linsync/internal/ui"
)

var (
	syncDirection string
	syncLimit     int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync local tasks with Linear issues",
	Long: `Pulls the team's issues into local tasks, pushes local tasks to Linear,
or both (the default).

Pull overwrites linked tasks with the issue's fields. Push creates issues for
unlinked tasks and overwrites linked issues with the task's fields. In a
two-way sync, tasks that were just pulled are not pushed back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := syncer.ParseDirection(syncDirection)
		if err != nil {
			return fail(cmd, err)
		}
		limit := syncLimit
		if !cmd.Flags().Changed("limit") {
			limit = cfg.Sync.Limit
		}

		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		store, err := openTasks()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		ctx, cancel := signalContext(cmd)
		defer cancel()

		res, err := newEngine(creds, store).Run(ctx, syncer.Options{Direction: dir, Limit: limit})
		switch {
		case res == nil:
			return fail(cmd, err)
		case jsonOut && err != nil:
			_ = out(cmd).SyncFailure(res, errorCode(err), err)
		case jsonOut:
			_ = out(cmd).SyncResult(res)
		default:
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderSyncResult(res))
		}
		if err != nil {
			return err
		}
		if n := len(res.Errors); n > 0 {
			return fmt.Errorf("sync finished with %d error(s)", n)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncDirection, "direction", "d", string(syncer.DirectionBoth), "pull, push or both")
	syncCmd.Flags().IntVarP(&syncLimit, "limit", "n", syncer.DefaultLimit, "maximum items per direction (default from config)")
	rootCmd.AddCommand(syncCmd)
}
