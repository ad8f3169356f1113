/*
Package config holds the pipeline settings. Values are loaded from an optional
YAML file and secrets are taken from the environment.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shanehull/insightpipe/internal/types"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoCategories        = errors.New("crawl.categories must not be empty")
	ErrCategoryMissingURL  = errors.New("category url is required")
	ErrCategoryMissingName = errors.New("category name is required")
	ErrInvalidWindow       = errors.New("crawl.window_days must be at least 1")
	ErrInvalidSnapshot     = errors.New("crawl.snapshot_every must be at least 1")
	ErrInvalidRetries      = errors.New("fetch.max_retries must be non-negative")
	ErrNoUserAgents        = errors.New("fetch.user_agents must not be empty")
	ErrMissingAPIKey       = errors.New("gemini API key is required (GEMINI_API_KEY or GOOGLE_API_KEY)")
	ErrInvalidMaxContent   = errors.New("insights.max_content_chars must be at least 1")
	ErrMissingSpreadsheet  = errors.New("publish.spreadsheet_id is required when publishing is enabled")
	ErrMissingCredentials  = errors.New("publish.credentials_file is required when publishing is enabled")
	ErrInvalidLogLevel     = errors.New("log_level must be one of: debug, info, warn, error")
	ErrMissingDataDir      = errors.New("data_dir is required")
)

type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Crawl    CrawlConfig    `yaml:"crawl"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Insights InsightsConfig `yaml:"insights"`
	Tables   TablesConfig   `yaml:"tables"`
	Store    StoreConfig    `yaml:"store"`
	Publish  PublishConfig  `yaml:"publish"`
	Email    EmailConfig    `yaml:"email"`
}

type CrawlConfig struct {
	Categories    []types.CategorySource `yaml:"categories"`
	WindowDays    int                    `yaml:"window_days"`
	DetailDelay   time.Duration          `yaml:"detail_delay"`
	PageDelay     time.Duration          `yaml:"page_delay"`
	CategoryDelay time.Duration          `yaml:"category_delay"`
	SnapshotEvery int                    `yaml:"snapshot_every"`
	DetailWorkers int                    `yaml:"detail_workers"`
	CollectTags   bool                   `yaml:"collect_tags"`
	CollectImages bool                   `yaml:"collect_images"`
}

type FetchConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	BackoffStep   time.Duration `yaml:"backoff_step"`
	RetryStatuses []int         `yaml:"retry_statuses"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	UserAgents    []string      `yaml:"user_agents"`
}

type InsightsConfig struct {
	APIKey          string        `yaml:"-"`
	Model           string        `yaml:"model"`
	CallDelay       time.Duration `yaml:"call_delay"`
	MaxContentChars int           `yaml:"max_content_chars"`
}

type TablesConfig struct {
	MultiValueColumns []string `yaml:"multi_value_columns"`
}

type StoreConfig struct {
	// Path of the SQLite export. Empty disables the export.
	Path string `yaml:"path"`
}

type PublishConfig struct {
	Enabled         bool              `yaml:"enabled"`
	SpreadsheetID   string            `yaml:"spreadsheet_id"`
	CredentialsFile string            `yaml:"credentials_file"`
	MainSheet       string            `yaml:"main_sheet"`
	Sheets          map[string]string `yaml:"sheets"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	SMTPUser   string `yaml:"smtp_user"`
	SMTPPass   string `yaml:"-"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.SMTPUser != "" && e.SMTPPass != "" && e.ToEmail != ""
}

// Default returns the settings the pipeline runs with when no file is given.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		LogLevel: "info",
		LogFile:  "pipeline.log",
		Crawl: CrawlConfig{
			Categories: []types.CategorySource{
				{Name: "AI", URL: "https://techcrunch.com/category/artificial-intelligence/"},
				{Name: "Venture", URL: "https://techcrunch.com/category/venture/"},
				{Name: "Apps", URL: "https://techcrunch.com/category/apps/"},
				{Name: "Startups", URL: "https://techcrunch.com/category/startups/"},
			},
			WindowDays:    30,
			DetailDelay:   2 * time.Second,
			PageDelay:     3 * time.Second,
			CategoryDelay: 5 * time.Second,
			SnapshotEvery: 10,
			DetailWorkers: 1,
			CollectTags:   true,
			CollectImages: true,
		},
		Fetch: FetchConfig{
			MaxRetries:    5,
			BackoffStep:   time.Second,
			RetryStatuses: []int{429, 500, 502, 503, 504},
			Timeout:       30 * time.Second,
			MaxBodyBytes:  10 << 20,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			},
		},
		Insights: InsightsConfig{
			Model:           "gemini-2.0-flash",
			CallDelay:       2 * time.Second,
			MaxContentChars: 12000,
		},
		Tables: TablesConfig{
			MultiValueColumns: []string{
				"keywords", "sub_sectors", "products", "events", "trends", "organizations",
				"people", "investors", "funding_rounds", "market_gaps", "innovations", "locations",
			},
		},
		Publish: PublishConfig{
			Enabled:   true,
			MainSheet: "Main",
			Sheets: map[string]string{
				"sub_sectors":    "Sub Sectors",
				"trends":         "Trends",
				"market_gaps":    "Market Gaps",
				"innovations":    "Innovations",
				"keywords":       "Keywords",
				"locations":      "Locations",
				"products":       "Products",
				"people":         "People",
				"organizations":  "Organizations",
				"events":         "Events",
				"funding_rounds": "Funding Rounds",
				"investors":      "Investors",
			},
		},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Environment secrets are applied in both cases; validation is left to the
// caller because individual steps need different parts of the config.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Insights.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Insights.APIKey = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Publish.CredentialsFile == "" {
		c.Publish.CredentialsFile = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Email.SMTPPass = v
	}
	if c.Email.FromEmail == "" {
		c.Email.FromEmail = c.Email.SMTPUser
	}
}

// Validate checks the settings shared by every step.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrMissingDataDir
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	if len(c.Crawl.Categories) == 0 {
		return ErrNoCategories
	}
	for i, cat := range c.Crawl.Categories {
		if cat.Name == "" {
			return fmt.Errorf("%w: categories[%d]", ErrCategoryMissingName, i)
		}
		if cat.URL == "" {
			return fmt.Errorf("%w: categories[%d] (%s)", ErrCategoryMissingURL, i, cat.Name)
		}
	}
	if c.Crawl.WindowDays < 1 {
		return ErrInvalidWindow
	}
	if c.Crawl.SnapshotEvery < 1 {
		return ErrInvalidSnapshot
	}

	if c.Fetch.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if len(c.Fetch.UserAgents) == 0 {
		return ErrNoUserAgents
	}

	if c.Insights.MaxContentChars < 1 {
		return ErrInvalidMaxContent
	}

	return nil
}

// ValidateInsights checks what the extract step needs.
func (c *Config) ValidateInsights() error {
	if c.Insights.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ValidatePublish checks what the publish step needs.
func (c *Config) ValidatePublish() error {
	if !c.Publish.Enabled {
		return nil
	}
	if c.Publish.SpreadsheetID == "" {
		return ErrMissingSpreadsheet
	}
	if c.Publish.CredentialsFile == "" {
		return ErrMissingCredentials
	}
	return nil
}
