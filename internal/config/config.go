// Package config loads the crawler settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PagePlaceholder is replaced by the page number in ListingURL.
const PagePlaceholder = "{page}"

// DefaultListingURL is the state-wise directory the crawler was written for.
const DefaultListingURL = "https://ngodarpan.gov.in/index.php/home/statewise_ngo/6919/7/" + PagePlaceholder + "?"

// Configuration validation errors.
var (
	ErrInvalidStartPage  = errors.New("invalid start_page: must be at least 1")
	ErrInvalidRange      = errors.New("invalid page range: start_page is after end_page")
	ErrInvalidWait       = errors.New("invalid wait: settle and close waits must be non-negative")
	ErrInvalidTimeout    = errors.New("invalid load_timeout_seconds: must be positive")
	ErrInvalidInterval   = errors.New("invalid poll_interval_millis: must be positive")
	ErrInvalidRetries    = errors.New("invalid page_retries: must be non-negative")
	ErrInvalidRetryDelay = errors.New("invalid retry_delay_seconds: must be positive when retrying")
	ErrInvalidListingURL = errors.New("invalid listing_url: must contain " + PagePlaceholder)
	ErrMissingOutput     = errors.New("output path is required")
)

// Browser holds the Chrome launch settings.
type Browser struct {
	ExecPath  string `yaml:"exec_path"`
	Headless  bool   `yaml:"headless"`
	UserAgent string `yaml:"user_agent"`
}

// Checkpoint holds the progress store settings.
type Checkpoint struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Resume  bool   `yaml:"resume"`
}

// Config holds all the settings for a crawl run.
type Config struct {
	StartPage          int        `yaml:"start_page"`
	EndPage            int        `yaml:"end_page"`
	SettleWaitSeconds  int        `yaml:"settle_wait_seconds"`
	CloseWaitSeconds   int        `yaml:"close_wait_seconds"`
	LoadTimeoutSeconds int        `yaml:"load_timeout_seconds"`
	PollIntervalMillis int        `yaml:"poll_interval_millis"`
	PageRetries        int        `yaml:"page_retries"`
	RetryDelaySeconds  int        `yaml:"retry_delay_seconds"`
	ListingURL         string     `yaml:"listing_url"`
	Output             string     `yaml:"output"`
	Browser            Browser    `yaml:"browser"`
	Checkpoint         Checkpoint `yaml:"checkpoint"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		StartPage:          1,
		EndPage:            -1,
		SettleWaitSeconds:  5,
		CloseWaitSeconds:   1,
		LoadTimeoutSeconds: 10,
		PollIntervalMillis: 250,
		PageRetries:        0,
		RetryDelaySeconds:  5,
		ListingURL:         DefaultListingURL,
		Output:             "output.xlsx",
		Browser: Browser{
			Headless: true,
		},
		Checkpoint: Checkpoint{
			Enabled: true,
		},
	}
}

// Load reads the YAML file at path on top of the defaults. A missing or empty
// file is not an error; an unknown key is. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the crawler cannot run with.
func (c Config) Validate() error {
	if c.StartPage < 1 {
		return ErrInvalidStartPage
	}
	if c.EndPage >= 0 && c.StartPage > c.EndPage {
		return fmt.Errorf("%w (%d > %d)", ErrInvalidRange, c.StartPage, c.EndPage)
	}
	if c.SettleWaitSeconds < 0 || c.CloseWaitSeconds < 0 {
		return ErrInvalidWait
	}
	if c.LoadTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	if c.PollIntervalMillis <= 0 {
		return ErrInvalidInterval
	}
	if c.PageRetries < 0 {
		return ErrInvalidRetries
	}
	if c.PageRetries > 0 && c.RetryDelaySeconds <= 0 {
		return ErrInvalidRetryDelay
	}
	if !strings.Contains(c.ListingURL, PagePlaceholder) {
		return ErrInvalidListingURL
	}
	if c.Output == "" {
		return ErrMissingOutput
	}
	return nil
}

// PageURL returns the listing URL of the given page.
func (c Config) PageURL(page int) string {
	return strings.ReplaceAll(c.ListingURL, PagePlaceholder, strconv.Itoa(page))
}

// EndOverride reports the configured last page and whether it overrides the
// discovered one.
func (c Config) EndOverride() (int, bool) {
	return c.EndPage, c.EndPage >= 0
}

// SettleWait is the pause after opening a detail view.
func (c Config) SettleWait() time.Duration {
	return time.Duration(c.SettleWaitSeconds) * time.Second
}

// CloseWait is the pause after closing a detail view.
func (c Config) CloseWait() time.Duration {
	return time.Duration(c.CloseWaitSeconds) * time.Second
}

// LoadTimeout bounds every wait for a render marker.
func (c Config) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSeconds) * time.Second
}

// PollInterval is how often a render marker is checked.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// RetryDelay is the first backoff delay before retrying a timed out page.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
