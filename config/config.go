package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Selectors describes where each field lives in the target site's markup.
type Selectors struct {
	ProductBlock string `yaml:"product_block"`
	Name         string `yaml:"name"`
	Price        string `yaml:"price"`
	SKU          string `yaml:"sku"`
	Link         string `yaml:"link"`
	TotalCount   string `yaml:"total_count"`
	NextPage     string `yaml:"next_page"`
	CategoryLink string `yaml:"category_link"`
}

// Config holds scraper configuration.
type Config struct {
	HomeURL      string        `yaml:"home_url"`
	LinksFile    string        `yaml:"links_file"`
	OutputFile   string        `yaml:"output_file"`
	OutputFormat string        `yaml:"output_format"` // json, csv, or dual
	PageSize     int           `yaml:"page_size"`
	PageParam    string        `yaml:"page_param"`
	Workers      int           `yaml:"workers"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxLinks     int           `yaml:"max_links"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	Verbose      bool          `yaml:"verbose"`
	Selectors    Selectors     `yaml:"selectors"`
}

// DefaultConfig returns defaults matching the Magento storefront the tool was written for.
func DefaultConfig() *Config {
	return &Config{
		HomeURL:      "https://billyhydemusic.com.au",
		LinksFile:    "links.txt",
		OutputFile:   "data/scraped_data.json",
		OutputFormat: "json",
		PageSize:     36,
		PageParam:    "p",
		Workers:      1,
		Timeout:      10 * time.Second,
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MaxLinks:     1000,
		Selectors: Selectors{
			ProductBlock: "div.product-item-info",
			Name:         "span.product-name a",
			Price:        "span.price",
			SKU:          "span.product-sku",
			Link:         "span.product-name a",
			TotalCount:   "#toolbar-amount span.toolbar-number",
			NextPage:     "li.pages-item-next a",
			CategoryLink: `a.nav-anchor[data-color="#ffffff"]`,
		},
	}
}

// LoadFile overlays the YAML document at path onto the defaults.
// Keys missing from the file keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.HomeURL != "" {
		parsedURL, err := url.Parse(c.HomeURL)
		if err != nil {
			return fmt.Errorf("invalid home URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("home URL must include a host")
		}
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.PageParam == "" {
		return fmt.Errorf("page param cannot be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxLinks <= 0 {
		return fmt.Errorf("max links must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return c.Selectors.validate()
}

func (s Selectors) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"product_block", s.ProductBlock},
		{"name", s.Name},
		{"price", s.Price},
		{"sku", s.SKU},
		{"link", s.Link},
		{"total_count", s.TotalCount},
		{"next_page", s.NextPage},
		{"category_link", s.CategoryLink},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("selector %s cannot be empty", field.name)
		}
	}
	return nil
}
