package cmd

import (
	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/task"
	"github.com/toba/linsync/internal/ui"
)

var (
	taskTitle       string
	taskDescription string
	taskStatus      string
	taskPriority    string
)

var tasksAddCmd = &cobra.Command{
	Use:     "add <title>",
	Aliases: []string{"create", "new"},
	Short:   "Create a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := task.Params{Title: args[0], Description: taskDescription}
		if err := applyEnumFlags(cmd, &p); err != nil {
			return fail(cmd, err)
		}

		store, err := openTasks()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		t, err := store.Create(p)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).Success(t, "Task created")
		}
		printf(cmd, "Created %s\n", ui.RenderTaskRow(t, 0))
		return nil
	},
}

var tasksUpdateCmd = &cobra.Command{
	Use:     "update <id>",
	Aliases: []string{"edit"},
	Short:   "Change a task's fields",
	Long:    `Changes only the fields given as flags. The task's link to Linear is kept; the next push sends the changes.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTasks()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		cur, err := store.Get(args[0])
		if err != nil {
			return fail(cmd, err)
		}
		p := task.Params{
			Title:       cur.Title,
			Description: cur.Description,
			Status:      cur.Status,
			Priority:    cur.Priority,
		}
		if cmd.Flags().Changed("title") {
			p.Title = taskTitle
		}
		if cmd.Flags().Changed("description") {
			p.Description = taskDescription
		}
		if err := applyEnumFlags(cmd, &p); err != nil {
			return fail(cmd, err)
		}

		t, err := store.Update(cur.ID, p)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).Success(t, "Task updated")
		}
		printf(cmd, "Updated %s\n", ui.RenderTaskRow(t, 0))
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task locally",
	Long:    `Deletes a task from the local list. A linked Linear issue is not deleted.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openTasks()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		if err := store.Delete(args[0]); err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).Message("Task deleted")
		}
		printf(cmd, "Deleted %s\n", ui.ID.Render(args[0]))
		return nil
	},
}

// applyEnumFlags parses --status and --priority into p when given.
func applyEnumFlags(cmd *cobra.Command, p *task.Params) error {
	if cmd.Flags().Changed("status") {
		s, err := task.ParseStatus(taskStatus)
		if err != nil {
			return err
		}
		p.Status = s
	}
	if cmd.Flags().Changed("priority") {
		pr, err := task.ParsePriority(taskPriority)
		if err != nil {
			return err
		}
		p.Priority = pr
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{tasksAddCmd, tasksUpdateCmd} {
		c.Flags().StringVarP(&taskDescription, "description", "d", "", "task description")
		c.Flags().StringVarP(&taskStatus, "status", "s", "", "todo, in-progress or done")
		c.Flags().StringVarP(&taskPriority, "priority", "p", "", "low, medium or high")
	}
	tasksUpdateCmd.Flags().StringVarP(&taskTitle, "title", "t", "", "task title")
	tasksCmd.AddCommand(tasksAddCmd, tasksUpdateCmd, tasksDeleteCmd)
}
