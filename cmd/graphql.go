package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/toba/linsync/internal/linear"
)

var (
	queryRaw       bool
	queryVariables string
)

var graphqlCmd = &cobra.Command{
	Use:     "graphql <query>",
	Aliases: []string{"query"},
	Short:   "Run a raw GraphQL query or mutation against Linear",
	Long: `Runs a GraphQL document against the Linear API with the stored key, using
the same pacing and retry as sync.

Examples:
  # Who am I?
  linsync graphql '{ viewer { id name } }'

  # Use variables
  linsync graphql -v '{"id": "ENG-1"}' 'query Issue($id: String!) { issue(id: $id) { title } }'

  # Read from stdin
  echo '{ teams { nodes { key name } } }' | linsync graphql`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var query string
		if len(args) == 1 {
			query = args[0]
		} else {
			stdinQuery, err := readFromStdin()
			if err != nil {
				return err
			}
			if stdinQuery == "" {
				return errors.New("no query provided (pass as argument or pipe to stdin)")
			}
			query = stdinQuery
		}
		if _, err := linear.ParseDocument(query); err != nil {
			return err
		}

		var variables map[string]any
		if queryVariables != "" {
			if err := json.Unmarshal([]byte(queryVariables), &variables); err != nil {
				return fmt.Errorf("invalid variables JSON: %w", err)
			}
		}

		creds, err := openCredentials()
		if err != nil {
			return err
		}
		client, err := authedClient(creds)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()

		var data json.RawMessage
		if err := client.Execute(ctx, query, variables, &data); err != nil {
			if lerr, ok := errors.AsType[*linear.Error](err); ok && len(lerr.Details) > 0 {
				return formatGraphQLErrors(lerr.Details)
			}
			return err
		}

		if queryRaw || jsonOut {
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty.Pretty(data)))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty.Color(pretty.Pretty(data), nil)))
		}
		return nil
	},
}

func readFromStdin() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("checking stdin: %w", err)
	}
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func formatGraphQLErrors(errs gqlerror.List) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return fmt.Errorf("graphql: %s", errs[0].Message)
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("graphql errors:\n  %s", strings.Join(msgs, "\n  "))
}

func init() {
	graphqlCmd.Flags().BoolVar(&queryRaw, "raw", false, "output JSON without colors (for piping)")
	graphqlCmd.Flags().StringVarP(&queryVariables, "variables", "v", "", "query variables as JSON string")
	rootCmd.AddCommand(graphqlCmd)
}
