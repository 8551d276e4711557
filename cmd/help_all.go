package cmd

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var helpAllCmd = &cobra.Command{
	Use:   "help-all",
	Short: "Show all commands and flags in a compact reference",
	Long:  "Print one block per command with its arguments and flags. Useful for scripts wrapping linsync.",
	Args:  cobra.NoArgs,
	// Needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		writeCommandTree(cmd.OutOrStdout(), rootCmd, "")
	},
}

func init() {
	rootCmd.AddCommand(helpAllCmd)
}

func writeCommandTree(w io.Writer, cmd *cobra.Command, prefix string) {
	if cmd.Hidden || cmd.Name() == "completion" || cmd.Name() == "help-all" {
		return
	}
	if cmd.Name() == "help" && cmd.Parent() == rootCmd {
		return
	}

	name := cmd.Name()
	if prefix != "" {
		name = prefix + " " + name
	}
	fmt.Fprintf(w, "%s: %s\n", name, cmp.Or(cmd.Short, cmd.Long))

	if _, argSpec, ok := strings.Cut(cmd.Use, " "); ok {
		fmt.Fprintf(w, "  usage: %s %s\n", name, argSpec)
	}
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(w, "  aliases: %s\n", strings.Join(cmd.Aliases, ", "))
	}
	if flags := flagSummary(cmd); len(flags) > 0 {
		fmt.Fprintf(w, "  flags: %s\n", strings.Join(flags, ", "))
	}

	subs := cmd.Commands()
	slices.SortFunc(subs, func(a, b *cobra.Command) int { return cmp.Compare(a.Name(), b.Name()) })
	for _, sub := range subs {
		writeCommandTree(w, sub, name)
	}
}

// flagSummary lists a command's own flags as -s/--name <type> (default: v).
func flagSummary(cmd *cobra.Command) []string {
	var flags []string
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" {
			return
		}
		entry := "--" + f.Name
		if f.Shorthand != "" {
			entry = "-" + f.Shorthand + "/" + entry
		}
		if t := f.Value.Type(); t != "bool" {
			entry += " <" + t + ">"
		}
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" {
			entry += " (default: " + f.DefValue + ")"
		}
		flags = append(flags, entry)
	})
	if cmd == rootCmd {
		cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			flags = append(flags, "--"+f.Name)
		})
	}
	return flags
}
