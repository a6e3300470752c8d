package config

// Config represents the scriptstash.yaml configuration file. Values are
// threaded explicitly through constructors; nothing here is process-global.
type Config struct {
	Version int `yaml:"version"`

	// Owner is the remote account identity used to scope discovery.
	Owner string `yaml:"owner"`

	// Root is the local state directory (mapping record, pointer, cached
	// script bodies, lock file, logs). Empty means the default root.
	Root string `yaml:"root,omitempty"`

	// APIBaseURL points at the remote document store. Empty means the
	// public GitHub API.
	APIBaseURL string `yaml:"api_base_url,omitempty"`

	// TimeoutSeconds is the per-remote-call timeout. Zero means the
	// default (30s).
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// PrivateDocuments controls the visibility of newly created documents.
	PrivateDocuments bool `yaml:"private_documents"`

	// TokenFile optionally names a file holding the access token.
	// Environment variables take precedence; see Token().
	TokenFile string `yaml:"token_file,omitempty"`

	Generation Generation `yaml:"generation,omitempty"`
}

// Generation configures the script generation collaborator.
type Generation struct {
	Model     string `yaml:"model,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}
