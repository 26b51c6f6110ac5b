package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "UTC"
	defaultRefresh  = "0 */6 * * *"
	defaultMaxOcc   = 5000
	envPrefix       = "STORECAL_"
)

// FeedConfig is one holiday/cultural iCalendar subscription. Its events are
// imported as cultural events of BusinessID.
type FeedConfig struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	URL               string   `yaml:"url" json:"url"`
	BusinessID        string   `yaml:"business_id" json:"business_id"`
	Communities       []string `yaml:"communities,omitempty" json:"communities,omitempty"`
	DemandIncreasePct float64  `yaml:"demand_increase_pct,omitempty" json:"demand_increase_pct,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone of the business; form dates are read in it
	// and views are computed in it.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// DatabaseDSN selects the Postgres store. Empty keeps everything in
	// memory.
	DatabaseDSN string `yaml:"database_dsn" json:"database_dsn"`

	// RedisURL selects the Redis change bus. Empty uses the in-process bus.
	RedisURL string `yaml:"redis_url" json:"redis_url"`

	// ExpandRecurring turns recurrence expansion on. Defaults to true.
	ExpandRecurring *bool `yaml:"expand_recurring,omitempty" json:"expand_recurring,omitempty"`

	MaxOccurrencesPerEvent int `yaml:"max_occurrences_per_event" json:"max_occurrences_per_event"`

	// RefreshCron is the standard 5-field schedule of holiday feed imports.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	FeedCacheDir string       `yaml:"feed_cache_dir" json:"feed_cache_dir"`
	HolidayFeeds []FeedConfig `yaml:"holiday_feeds" json:"holiday_feeds"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	expand := true
	return &Config{
		Listen:                 defaultListen,
		Timezone:               defaultTimezone,
		LogLevel:               "info",
		ExpandRecurring:        &expand,
		MaxOccurrencesPerEvent: defaultMaxOcc,
		RefreshCron:            defaultRefresh,
		FeedCacheDir:           "./var/feed-cache",
		HolidayFeeds:           []FeedConfig{},
	}
}

// Normalize fills zero values with defaults so older or partial files keep
// working.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ExpandRecurring == nil {
		expand := true
		c.ExpandRecurring = &expand
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = defaultMaxOcc
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.FeedCacheDir == "" {
		c.FeedCacheDir = "./var/feed-cache"
	}
	if c.HolidayFeeds == nil {
		c.HolidayFeeds = []FeedConfig{}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Expand reports whether recurring templates are expanded.
func (c *Config) Expand() bool {
	return c.ExpandRecurring == nil || *c.ExpandRecurring
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err))
	}
	seen := map[string]bool{}
	for i, f := range c.HolidayFeeds {
		switch {
		case f.ID == "":
			errs = append(errs, fmt.Errorf("config: holiday_feeds[%d]: id is required", i))
		case seen[f.ID]:
			errs = append(errs, fmt.Errorf("config: holiday_feeds[%d]: duplicate id %q", i, f.ID))
		}
		seen[f.ID] = true
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("config: holiday_feeds[%d]: url is required", i))
		}
		if f.BusinessID == "" {
			errs = append(errs, fmt.Errorf("config: holiday_feeds[%d]: business_id is required", i))
		}
	}
	return errors.Join(errs...)
}

// Load reads the YAML config at path. On first run the defaults are
// written there with 0600 permissions and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// ApplyEnv overrides c from STORECAL_* variables. envFiles are read with
// godotenv and only fill variables the process environment does not set;
// missing files are ignored.
func ApplyEnv(c *Config, envFiles ...string) error {
	fileVars := map[string]string{}
	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range vars {
			if _, ok := fileVars[k]; !ok {
				fileVars[k] = v
			}
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			return v, true
		}
		v, ok := fileVars[envPrefix+key]
		return v, ok
	}
	return applyEnv(c, lookup)
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LISTEN", &c.Listen)
	str("TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_DSN", &c.DatabaseDSN)
	str("REDIS_URL", &c.RedisURL)
	str("REFRESH", &c.RefreshCron)
	str("FEED_CACHE_DIR", &c.FeedCacheDir)

	if v, ok := lookup("EXPAND_RECURRING"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %sEXPAND_RECURRING: %w", envPrefix, err)
		}
		c.ExpandRecurring = &b
	}
	if v, ok := lookup("MAX_OCCURRENCES_PER_EVENT"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %sMAX_OCCURRENCES_PER_EVENT: %w", envPrefix, err)
		}
		c.MaxOccurrencesPerEvent = n
	}

	user, uok := lookup("BASIC_AUTH_USERNAME")
	pass, pok := lookup("BASIC_AUTH_PASSWORD")
	if (uok && user != "") || (pok && pass != "") {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		if user != "" {
			c.BasicAuth.Username = user
		}
		if pass != "" {
			c.BasicAuth.Password = pass
		}
	}

	c.Normalize()
	return nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".storecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
