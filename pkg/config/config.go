package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go -out schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:sentinel.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Schedule struct {
		UpdateInterval int           `yaml:"update_interval" json:"update_interval" jsonschema:"default=30,description=Ingestion cycle interval in minutes"`
		MaxWorkers     int           `yaml:"max_workers" json:"max_workers" jsonschema:"default=5,description=Maximum concurrent item workers per cycle"`
		ActiveHours    string        `yaml:"active_hours" json:"active_hours" jsonschema:"description=Persist window as HH:MM-HH:MM; empty means always"`
		ItemTimeout    time.Duration `yaml:"item_timeout" json:"item_timeout" jsonschema:"default=1m,description=Per-item processing timeout"`
	} `yaml:"schedule" json:"schedule" jsonschema:"description=Scheduler configuration"`

	Sources []SourceConfig `yaml:"sources" json:"sources" jsonschema:"description=News sources to ingest from"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch" jsonschema:"description=Source fetching configuration"`

	Formatter FormatterConfig `yaml:"formatter" json:"formatter" jsonschema:"description=Content formatting stage toggles"`

	AI AIConfig `yaml:"ai" json:"ai" jsonschema:"description=AI enhancement and translation configuration"`

	Translation TranslationConfig `yaml:"translation" json:"translation" jsonschema:"description=Secondary language translation configuration"`
}

// SourceConfig describes one external news source
type SourceConfig struct {
	Name             string `yaml:"name" json:"name" jsonschema:"required,description=Source display name"`
	FeedURL          string `yaml:"feed_url" json:"feed_url" jsonschema:"required,description=RSS/Atom feed URL"`
	FetchFullContent bool   `yaml:"fetch_full_content" json:"fetch_full_content" jsonschema:"default=false,description=Download article pages and extract the full body"`
	MaxItems         int    `yaml:"max_items" json:"max_items" jsonschema:"default=20,description=Maximum items taken per cycle"`
}

// FetchConfig holds source fetching settings
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP timeout per request"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Sentinel/1.0,description=User agent for HTTP requests"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum extracted text length to consider valid"`
}

// FormatterConfig gates the enhancement stages applied during ingestion.
// Absent fields fall back to the default ingestion stage set.
type FormatterConfig struct {
	AddSectionHeadings      bool `yaml:"add_section_headings" json:"add_section_headings" jsonschema:"default=true,description=Insert a heading before the first paragraph when none exists"`
	EnhanceQuotes           bool `yaml:"enhance_quotes" json:"enhance_quotes" jsonschema:"default=true,description=Wrap recognized quotations in blockquotes"`
	OptimizeLists           bool `yaml:"optimize_lists" json:"optimize_lists" jsonschema:"default=true,description=Convert list-like line runs into lists"`
	EnhanceStructure        bool `yaml:"enhance_structure" json:"enhance_structure" jsonschema:"default=false,description=Group adjacent short paragraphs into sections"`
	ReadabilityOptimization bool `yaml:"enable_readability_optimization" json:"enable_readability_optimization" jsonschema:"default=true,description=Split over-long paragraphs at sentence boundaries"`
	SEOOptimization         bool `yaml:"enable_seo_optimization" json:"enable_seo_optimization" jsonschema:"default=false,description=Anchor the title keyword in the first paragraph"`
	VisualEnhancement       bool `yaml:"enable_visual_enhancement" json:"enable_visual_enhancement" jsonschema:"default=false,description=Add presentational classes to images and embeds"`
	ContentAnalysis         bool `yaml:"enable_content_analysis" json:"enable_content_analysis" jsonschema:"default=false,description=Enable content analysis"`
	AddKeyPoints            bool `yaml:"add_key_points" json:"add_key_points" jsonschema:"default=false,description=Append a key-points summary list (requires content analysis)"`
	AIEnhancement           bool `yaml:"enable_ai_enhancement" json:"enable_ai_enhancement" jsonschema:"default=false,description=Delegate to the external text enhancer when available"`
}

// AIConfig holds the OpenAI-compatible endpoint used for text enhancement
// and translation
type AIConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable the AI collaborator"`
	Endpoint    string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey      string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model       string        `yaml:"model" json:"model" jsonschema:"description=Model name (e.g. gpt-4o-mini or llama3)"`
	Temperature float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=2000,description=Maximum tokens in response"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
}

// TranslationConfig holds secondary-language settings; translation failures
// always degrade to an empty secondary field, never a hard failure
type TranslationConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Populate the secondary language via the AI collaborator"`
	TargetLang string `yaml:"target_lang" json:"target_lang" jsonschema:"default=km,description=Secondary language code"`
}

var activeHoursRe = regexp.MustCompile(`^\d{2}:\d{2}-\d{2}:\d{2}$`)

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	// seed stage toggles before unmarshal so absent booleans keep the
	// default ingestion stage set while explicit false still wins
	var cfg Config
	cfg.Formatter = defaultFormatterConfig()

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// set defaults for database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:sentinel.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// set defaults for schedule
	if cfg.Schedule.UpdateInterval == 0 {
		cfg.Schedule.UpdateInterval = 30
	}
	if cfg.Schedule.MaxWorkers == 0 {
		cfg.Schedule.MaxWorkers = 5
	}
	if cfg.Schedule.ItemTimeout == 0 {
		cfg.Schedule.ItemTimeout = time.Minute
	}

	// set defaults for fetch
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "Sentinel/1.0"
	}
	if cfg.Fetch.MinTextLength == 0 {
		cfg.Fetch.MinTextLength = 100
	}

	// set defaults for sources
	for i := range cfg.Sources {
		if cfg.Sources[i].MaxItems == 0 {
			cfg.Sources[i].MaxItems = 20
		}
	}

	// set defaults for AI
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.3
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 2000
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 30 * time.Second
	}

	// set defaults for translation
	if cfg.Translation.TargetLang == "" {
		cfg.Translation.TargetLang = "km"
	}

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// defaultFormatterConfig is the stage set used for ingestion when the
// formatter section is absent
func defaultFormatterConfig() FormatterConfig {
	return FormatterConfig{
		AddSectionHeadings:      true,
		EnhanceQuotes:           true,
		OptimizeLists:           true,
		ReadabilityOptimization: true,
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	// validate schedule config
	if cfg.Schedule.ActiveHours != "" && !activeHoursRe.MatchString(cfg.Schedule.ActiveHours) {
		return fmt.Errorf("schedule.active_hours must be in HH:MM-HH:MM format")
	}

	// validate sources
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if src.FeedURL == "" {
			return fmt.Errorf("sources[%d].feed_url is required", i)
		}
	}

	// validate AI config
	if cfg.AI.Enabled {
		if cfg.AI.Endpoint == "" {
			return fmt.Errorf("ai.endpoint is required when ai is enabled")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai is enabled")
		}
		if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
			return fmt.Errorf("ai.temperature must be between 0 and 2")
		}
	}

	// translation rides on the AI collaborator
	if cfg.Translation.Enabled && !cfg.AI.Enabled {
		return fmt.Errorf("translation requires ai to be enabled")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetFormatterConfig returns the formatting stage toggles
func (c *Config) GetFormatterConfig() FormatterConfig {
	return c.Formatter
}

// GetAIConfig returns AI configuration
func (c *Config) GetAIConfig() AIConfig {
	return c.AI
}
