package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	// HTTPAddr is the HTTP server's bind address
	HTTPAddr string `default:":8000" split_words:"true" required:"true"`

	// Secret is the shared secret task submitters must provide. If empty every
	// submission is accepted (dev mode).
	Secret string

	// GhToken is a GitHub API token with repository write and pages permissions
	GhToken string `split_words:"true"`

	// GhAppID is the ID of a GitHub App used instead of GhToken
	GhAppID int64 `envconfig:"GH_APP_ID"`

	// GhInstallationID is the GitHub App installation ID for GhOwner
	GhInstallationID int64 `split_words:"true"`

	// GhPrivateKeyPath is the path to the GitHub App's private key
	GhPrivateKeyPath string `split_words:"true"`

	// GhOwner is the GitHub user / organization which owns published repositories
	GhOwner string `split_words:"true" required:"true"`

	// GhOwnerIsOrg indicates repositories should be created under the GhOwner
	// organization instead of the authenticated user
	GhOwnerIsOrg bool `default:"false" split_words:"true"`

	// GhAPIURL overrides the GitHub API base URL, ex., for GitHub Enterprise
	GhAPIURL string `envconfig:"GH_API_URL"`

	// GhBranch is the branch files are written to and GitHub Pages serves
	GhBranch string `default:"main" split_words:"true" required:"true"`

	// RepoPrefix is prepended to task IDs to form repository names
	RepoPrefix string `default:"student-repo-" split_words:"true"`

	// AipipeAPIKey authenticates with the primary, OpenAI compatible, generation API
	AipipeAPIKey string `envconfig:"AIPIPE_API_KEY"`

	// AipipeBaseURL is the primary generation API base URL
	AipipeBaseURL string `envconfig:"AIPIPE_BASE_URL" default:"https://aipipe.org/openai/v1"`

	// AipipeModel is the model requested from the primary generation API
	AipipeModel string `split_words:"true" default:"gpt-4o-mini"`

	// HuggingfaceAPIKey authenticates with the fallback generation API
	HuggingfaceAPIKey string `envconfig:"HUGGINGFACE_API_KEY"`

	// HuggingfaceBaseURL is the fallback generation API base URL
	HuggingfaceBaseURL string `envconfig:"HUGGINGFACE_BASE_URL" default:"https://api-inference.huggingface.co"`

	// HuggingfaceModel is the model requested from the fallback generation API
	HuggingfaceModel string `split_words:"true" default:"bigcode/starcoder2-15b"`

	// UploadDir is the directory submission attachments are saved in
	UploadDir string `default:"/tmp/uploads" split_words:"true" required:"true"`

	// OutboundTimeout bounds every individual outbound network call
	OutboundTimeout time.Duration `default:"30s" split_words:"true"`

	// RetryBaseDelay is the delay before the first retry of an outbound call
	RetryBaseDelay time.Duration `default:"2s" split_words:"true"`

	// RetryMaxDelay caps the delay between retries of an outbound call
	RetryMaxDelay time.Duration `default:"8s" split_words:"true"`

	// MaxConcurrentRuns is the maximum number of pipeline runs executing at once
	MaxConcurrentRuns int `default:"8" split_words:"true"`
}

// NewConfig loads configuration values from a .env file, if present, and
// environment variables
func NewConfig() (*Config, error) {
	// Missing .env files are normal outside of development
	_ = godotenv.Load()

	var config Config

	if err := envconfig.Process("app", &config); err != nil {
		return nil, fmt.Errorf("error loading values from environment variables: %s",
			err.Error())
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate ensures values envconfig tags cannot express are present
func (c Config) Validate() error {
	// envconfig's required tag accepts variables which are set but empty
	if len(c.GhOwner) == 0 {
		return fmt.Errorf("APP_GH_OWNER must not be empty")
	}

	if !c.GhTokenAuth() && !c.GhAppAuth() {
		return fmt.Errorf("either APP_GH_TOKEN or all of APP_GH_APP_ID, " +
			"APP_GH_INSTALLATION_ID and APP_GH_PRIVATE_KEY_PATH must be set")
	}

	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry delays must be positive and APP_RETRY_MAX_DELAY "+
			"(%s) must not be less than APP_RETRY_BASE_DELAY (%s)",
			c.RetryMaxDelay, c.RetryBaseDelay)
	}

	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("APP_MAX_CONCURRENT_RUNS must be at least 1")
	}

	return nil
}

// GhTokenAuth indicates a GitHub token was provided
func (c Config) GhTokenAuth() bool {
	return len(c.GhToken) > 0
}

// GhAppAuth indicates a complete set of GitHub App credentials was provided
func (c Config) GhAppAuth() bool {
	return c.GhAppID > 0 && c.GhInstallationID > 0 && len(c.GhPrivateKeyPath) > 0
}

// DevMode indicates no shared secret is configured so submissions are not authenticated
func (c Config) DevMode() bool {
	return len(c.Secret) == 0
}

// String returns a log safe version of Config in string form. Redacts any sensative fields.
func (c Config) String() (string, error) {
	for _, field := range []*string{&c.Secret, &c.GhToken, &c.AipipeAPIKey,
		&c.HuggingfaceAPIKey} {
		if *field != "" {
			*field = "REDACTED_NOT_EMPTY"
		}
	}

	configBytes, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to convert configuration into JSON: %s", err.Error())
	}

	return string(configBytes), nil
}
