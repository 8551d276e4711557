package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toba/linsync/internal/credential"
	"github.com/toba/linsync/internal/linear"
	"github.com/toba/linsync/internal/ui"
)

var (
	authToken  string
	authTeam   string
	authVerify bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Linear API token and default team",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a Linear API key and choose a default team",
	Long: `Validates an API key against Linear, stores it, and selects the team
that sync operates on.

The key is read from --token, from stdin when piped, or from a hidden prompt.
--team accepts a team key (ENG) or id; it may be omitted when the key has
access to exactly one team.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readToken(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		if err := credential.ValidateToken(token); err != nil {
			return fail(cmd, err)
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()

		client := newClient(token)
		viewer, err := client.Viewer(ctx)
		if err != nil {
			return fail(cmd, fmt.Errorf("validating token: %w", err))
		}
		team, err := resolveTeam(ctx, client, authTeam)
		if err != nil {
			return fail(cmd, err)
		}

		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		if err := creds.SetToken(token, viewer.ID); err != nil {
			return fail(cmd, err)
		}
		if err := creds.SetTeam(team.ID); err != nil {
			return fail(cmd, err)
		}
		log.WithFields(logrus.Fields{"user": viewer.ID, "team": team.Key}).Info("logged in")

		if jsonOut {
			return out(cmd).Path(fmt.Sprintf("Logged in as %s; default team %s", viewer.Name, team.Key), creds.Path())
		}
		printf(cmd, "%s Logged in as %s\n", ui.Success.Render("✔"), ui.Bold.Render(viewer.Name))
		printf(cmd, "  default team %s %s\n", ui.Identifier.Render(team.Key), team.Name)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return fail(cmd, err)
		}
		if err := creds.Clear(); err != nil {
			return fail(cmd, err)
		}
		if jsonOut {
			return out(cmd).Message("Logged out")
		}
		printf(cmd, "Logged out\n")
		return nil
	},
}

// authStatus is the JSON shape of auth status.
type authStatus struct {
	Configured bool       `json:"configured"`
	HasToken   bool       `json:"hasToken"`
	TeamID     string     `json:"teamId,omitempty"`
	UserID     string     `json:"userId,omitempty"`
	LastAuthAt *time.Time `json:"lastAuthAt,omitempty"`
	Backend    string     `json:"backend"`
	WebhookURL string     `json:"webhookUrl,omitempty"`
	Path       string     `json:"path"`
	Viewer     string     `json:"viewer,omitempty"`
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored credentials",
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
		_, tokErr := creds.Token()
		st := authStatus{
			Configured: c.Configured,
			HasToken:   tokErr == nil,
			TeamID:     c.TeamID,
			UserID:     c.UserID,
			LastAuthAt: c.LastAuthAt,
			Backend:    creds.Backend(),
			WebhookURL: c.WebhookURL,
			Path:       creds.Path(),
		}

		if authVerify && st.HasToken {
			client, err := authedClient(creds)
			if err != nil {
				return fail(cmd, err)
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			viewer, err := client.Viewer(ctx)
			if err != nil {
				return fail(cmd, fmt.Errorf("verifying token: %w", err))
			}
			st.Viewer = viewer.Name
		}

		if jsonOut {
			return out(cmd).JSON(st)
		}
		if !st.Configured {
			printf(cmd, "%s not configured; run 'linsync auth login'\n", ui.Warning.Render("!"))
		} else {
			printf(cmd, "%s configured\n", ui.Success.Render("✔"))
		}
		printf(cmd, "  token    %s\n", yesNo(st.HasToken))
		printf(cmd, "  team     %s\n", orDash(st.TeamID))
		if st.Viewer != "" {
			printf(cmd, "  user     %s\n", st.Viewer)
		}
		if st.LastAuthAt != nil {
			printf(cmd, "  login    %s\n", st.LastAuthAt.Local().Format(time.DateTime))
		}
		printf(cmd, "  backend  %s\n", st.Backend)
		if st.WebhookURL != "" {
			printf(cmd, "  webhook  %s\n", st.WebhookURL)
		}
		printf(cmd, "  file     %s\n", ui.Muted.Render(st.Path))
		return nil
	},
}

func init() {
	authLoginCmd.Flags().StringVar(&authToken, "token", "", "Linear API key (prompted when omitted)")
	authLoginCmd.Flags().StringVar(&authTeam, "team", "", "default team key or id")
	authStatusCmd.Flags().BoolVar(&authVerify, "verify", false, "check the token against Linear")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

// readToken returns --token, a piped line from stdin, or a hidden prompt.
func readToken(cmd *cobra.Command) (string, error) {
	if authToken != "" {
		return strings.TrimSpace(authToken), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Linear API key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// teamLister is the part of the client resolveTeam needs.
type teamLister interface {
	Teams(ctx context.Context) ([]linear.Team, error)
}

// resolveTeam finds a team by key or id. With an empty want it returns the
// only team the token can see.
func resolveTeam(ctx context.Context, client teamLister, want string) (*linear.Team, error) {
	teams, err := client.Teams(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	if want == "" {
		if len(teams) == 1 {
			return &teams[0], nil
		}
		keys := make([]string, len(teams))
		for i, t := range teams {
			keys[i] = t.Key
		}
		return nil, fmt.Errorf("choose a team with --team (available: %s)", strings.Join(keys, ", "))
	}
	for i := range teams {
		if teams[i].ID == want || strings.EqualFold(teams[i].Key, want) {
			return &teams[i], nil
		}
	}
	return nil, fmt.Errorf("team %q not found", want)
}

func yesNo(b bool) string {
	if b {
		return ui.Success.Render("yes")
	}
	return ui.Danger.Render("no")
}

func orDash(s string) string {
	if s == "" {
		return ui.Muted.Render("-")
	}
	return s
}
