package cmd

import (
	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/ui"
)

var linkCmd = &cobra.Command{
	Use:   "link <task-id> <issue>",
	Short: "Link a task to an existing Linear issue",
	Long: `Links a local task to an existing issue, given by id or identifier (ENG-123).

Use this to repair a LINK_FAILED sync error: the issue was created in Linear
but the task could not record it, so the next push would create a duplicate.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		res, err := newEngine(creds, store).Link(ctx, args[0], args[1])
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).LinkResult(res)
		}
		printf(cmd, "%s\n", ui.RenderLinkResult(res))
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <task-id>",
	Short: "Remove a task's link to its Linear issue",
	Long:  `Removes the link metadata from a task. The Linear issue is not changed; the next push creates a new issue for the task.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		store, err := openTasks()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		res, err := newEngine(creds, store).Unlink(args[0])
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).LinkResult(res)
		}
		printf(cmd, "%s\n", ui.RenderLinkResult(res))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linkCmd, unlinkCmd)
}
