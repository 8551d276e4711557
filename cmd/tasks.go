package cmd

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/task"
	"github.com/toba/linsync/internal/ui"
)

var (
	listStatus   []string
	listLinked   bool
	listUnlinked bool
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task", "t"},
	Short:   "Manage the local task list",
}

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTasks()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		statuses := make([]task.Status, 0, len(listStatus))
		for _, s := range listStatus {
			st, err := task.ParseStatus(s)
			if err != nil {
				return fail(cmd, err)
			}
			statuses = append(statuses, st)
		}

		tasks := filterTasks(store.List(), statuses, listLinked, listUnlinked)
		if jsonOut {
			return out(cmd).Tasks(tasks)
		}
		if len(tasks) == 0 {
			printf(cmd, "%s\n", ui.Muted.Render("No tasks"))
			return nil
		}
		for _, t := range tasks {
			printf(cmd, "%s\n", ui.RenderTaskRow(t, 60))
		}
		return nil
	},
}

// filterTasks keeps tasks matching any of statuses (all when empty) and the
// link filter.
func filterTasks(tasks []*task.Task, statuses []task.Status, linked, unlinked bool) []*task.Task {
	var kept []*task.Task
	for _, t := range tasks {
		if len(statuses) > 0 && !slices.Contains(statuses, t.Status) {
			continue
		}
		isLinked := t.RemoteID() != ""
		if linked && !isLinked || unlinked && isLinked {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

func init() {
	tasksListCmd.Flags().StringSliceVarP(&listStatus, "status", "s", nil, "filter by status (repeatable)")
	tasksListCmd.Flags().BoolVar(&listLinked, "linked", false, "only tasks linked to an issue")
	tasksListCmd.Flags().BoolVar(&listUnlinked, "unlinked", false, "only tasks not linked to an issue")
	tasksListCmd.MarkFlagsMutuallyExclusive("linked", "unlinked")
	tasksCmd.AddCommand(tasksListCmd)
	rootCmd.AddCommand(tasksCmd)
}
