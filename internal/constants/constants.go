// Package constants defines shared string constants used across multiple
// internal packages to avoid raw-string duplication and circular imports.
package constants

const (
	// AppName is the binary name and the directory name under the user config dir.
	AppName = "linsync"

	// ConfigFileName is the name of the application config file.
	ConfigFileName = "config.yaml"

	// CredentialsFileName holds the encrypted token and team settings.
	CredentialsFileName = "credentials.json"

	// TasksFileName is the JSON document backing the local task list.
	TasksFileName = "tasks.json"

	// EnvPrefix prefixes environment overrides, e.g. LINSYNC_API_ENDPOINT.
	EnvPrefix = "LINSYNC"

	// DefaultEndpoint is the Linear GraphQL endpoint.
	DefaultEndpoint = "https://api.linear.app/graphql"

	// DefaultWebhookPath is the path the webhook receiver listens on.
	DefaultWebhookPath = "/webhooks/linear"

	// BackendFile stores secrets encrypted in the credentials file.
	BackendFile = "file"

	// BackendKeyring stores secrets in the OS keyring.
	BackendKeyring = "keyring"
)
