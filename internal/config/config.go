package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"certline/internal/photos"
)

// Config models certline.yml.
type Config struct {
	Render   RenderConfig    `yaml:"render" json:"render"`
	Storage  StorageConfig   `yaml:"storage" json:"storage"`
	Export   ExportConfig    `yaml:"export" json:"export"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type RenderConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is normally supplied through CERTLINE_RENDER_API_KEY.
	APIKey         string                  `yaml:"api_key,omitempty" json:"-"`
	TimeoutSeconds int                     `yaml:"timeout_seconds" json:"timeout_seconds"`
	Templates      map[string]TemplateSpec `yaml:"templates" json:"templates"`
}

// TemplateSpec binds a certificate type to its render function and template.
type TemplateSpec struct {
	Function   string `yaml:"function" json:"function"`
	TemplateID string `yaml:"template_id" json:"template_id"`
}

type StorageConfig struct {
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
	PhotoBucket   string `yaml:"photo_bucket" json:"photo_bucket"`
	ArchiveBucket string `yaml:"archive_bucket" json:"archive_bucket"`
	// ArchiveDir enables permanent local copies of rendered certificates.
	ArchiveDir string `yaml:"archive_dir,omitempty" json:"archive_dir,omitempty"`
}

type ExportConfig struct {
	DownloadDir  string `yaml:"download_dir" json:"download_dir"`
	PhotoFailure string `yaml:"photo_failure" json:"photo_failure"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"-"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with certline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Render.BaseURL != "" {
		if u, err := url.Parse(c.Render.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.render.base_url must be an absolute url")
		}
	}
	if c.Render.TimeoutSeconds < 0 {
		return fmt.Errorf("config.render.timeout_seconds must not be negative")
	}
	if len(c.Render.Templates) == 0 {
		return fmt.Errorf("config.render.templates is required")
	}
	for certType, tpl := range c.Render.Templates {
		if strings.TrimSpace(certType) == "" {
			return fmt.Errorf("config.render.templates has empty certificate type")
		}
		if strings.TrimSpace(tpl.Function) == "" {
			return fmt.Errorf("template %s has empty function", certType)
		}
		if strings.TrimSpace(tpl.TemplateID) == "" {
			return fmt.Errorf("template %s has empty template_id", certType)
		}
	}
	if _, err := photos.ParsePolicy(c.Export.PhotoFailure); err != nil {
		return fmt.Errorf("config.export.photo_failure: %w", err)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Template returns the render binding for a certificate type.
func (c *Config) Template(certType string) (TemplateSpec, error) {
	tpl, ok := c.Render.Templates[certType]
	if !ok {
		return TemplateSpec{}, fmt.Errorf("no render template for certificate type %q (known: %s)", certType, strings.Join(c.CertificateTypes(), ", "))
	}
	return tpl, nil
}

// CertificateTypes lists configured certificate types in order.
func (c *Config) CertificateTypes() []string {
	out := make([]string, 0, len(c.Render.Templates))
	for k := range c.Render.Templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RenderTimeout is the bounded wait for the render function.
func (c *Config) RenderTimeout() time.Duration {
	if c.Render.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// PhotoPolicy returns the validated photo failure policy.
func (c *Config) PhotoPolicy() photos.FailurePolicy {
	p, err := photos.ParsePolicy(c.Export.PhotoFailure)
	if err != nil {
		return photos.FailExport
	}
	return p
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "certline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `render:
  base_url: ""
  timeout_seconds: 60
  templates:
    eic:
      function: generate-eic-pdf
      template_id: eic-standard
    eicr:
      function: generate-eicr-pdf
      template_id: eicr-standard
    minor-works:
      function: generate-minor-works-pdf
      template_id: minor-works-standard

storage:
  public_base_url: ""
  photo_bucket: inspection-photos
  archive_bucket: certificates

export:
  download_dir: certificates
  # fail aborts the export when photos cannot be loaded; omit exports without them.
  photo_failure: fail

webhooks: []
`
