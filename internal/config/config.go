package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config models pressgate.yml. Loaded once at process start and
// read-only afterwards; the engine never reads the environment
// mid-request.
type Config struct {
	WordPress WordPressConfig `yaml:"wordpress"`
	Slug      SlugConfig      `yaml:"slug"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Media     MediaConfig     `yaml:"media"`
	Server    ServerConfig    `yaml:"server"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

// Duration parses yaml values like "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type WordPressConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Username    string   `yaml:"username"`
	AppPassword string   `yaml:"app_password"`
	Timeout     Duration `yaml:"timeout"`
}

type SlugConfig struct {
	MaxLength      int      `yaml:"max_length"`
	Reserved       []string `yaml:"reserved"`
	ReservedSuffix string   `yaml:"reserved_suffix"`
}

type TaxonomyConfig struct {
	MaxDepth             int  `yaml:"max_depth"`
	MaxNameLength        int  `yaml:"max_name_length"`
	MaxDescriptionLength int  `yaml:"max_description_length"`
	AllowHTML            bool `yaml:"allow_html"`
}

type MediaConfig struct {
	FetchTimeout   Duration `yaml:"fetch_timeout"`
	UploadTimeout  Duration `yaml:"upload_timeout"`
	MaxConcurrency int      `yaml:"max_concurrency"`
	MaxBytes       int64    `yaml:"max_bytes"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	JWTSecret string `yaml:"jwt_secret"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// DefaultReservedSlugs are slugs that collide with WordPress routes or
// administrative surfaces and must never be produced bare.
var DefaultReservedSlugs = []string{
	"admin", "api", "wp-admin", "wp-content", "wp-json", "wordpress",
	"login", "feed", "rss", "sitemap", "category", "tag", "page", "post",
}

// Load reads the config file, expanding ${VAR} references from the
// environment (a .env file next to the process is honored first).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied and no remote
// store credentials. Validate will fail on it until the WordPress
// section is filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.WordPress.Timeout == 0 {
		c.WordPress.Timeout = Duration(30 * time.Second)
	}
	if c.Slug.MaxLength == 0 {
		c.Slug.MaxLength = 200
	}
	if len(c.Slug.Reserved) == 0 {
		c.Slug.Reserved = append([]string(nil), DefaultReservedSlugs...)
	}
	if c.Slug.ReservedSuffix == "" {
		c.Slug.ReservedSuffix = "-term"
	}
	if c.Taxonomy.MaxDepth == 0 {
		c.Taxonomy.MaxDepth = 10
	}
	if c.Taxonomy.MaxNameLength == 0 {
		c.Taxonomy.MaxNameLength = 200
	}
	if c.Taxonomy.MaxDescriptionLength == 0 {
		c.Taxonomy.MaxDescriptionLength = 1000
	}
	if c.Media.FetchTimeout == 0 {
		c.Media.FetchTimeout = Duration(30 * time.Second)
	}
	if c.Media.UploadTimeout == 0 {
		c.Media.UploadTimeout = Duration(60 * time.Second)
	}
	if c.Media.MaxConcurrency == 0 {
		c.Media.MaxConcurrency = 4
	}
	if c.Media.MaxBytes == 0 {
		c.Media.MaxBytes = 10 << 20
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v1"
	}
}

// Validate ensures the remote store connection settings are usable.
// Called once at startup; on failure the process must exit rather
// than serve requests.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WordPress.BaseURL) == "" {
		return fmt.Errorf("config.wordpress.base_url is required")
	}
	u, err := url.Parse(c.WordPress.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.wordpress.base_url must be an absolute URL")
	}
	if strings.TrimSpace(c.WordPress.Username) == "" {
		return fmt.Errorf("config.wordpress.username is required")
	}
	if strings.TrimSpace(c.WordPress.AppPassword) == "" {
		return fmt.Errorf("config.wordpress.app_password is required")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}
