package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models approline.yml.
type Config struct {
	Platform struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"platform"`
	Authorities struct {
		// Directory of registered contracting authorities, keyed by
		// authority name as it appears on submitted dossiers.
		Directory map[string]Authority `yaml:"directory"`
	} `yaml:"authorities"`
	AI struct {
		Model       string  `yaml:"model"`
		Temperature float32 `yaml:"temperature"`
		BaseURL     string  `yaml:"base_url"`
	} `yaml:"ai"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Authority is one contracting-authority directory entry.
type Authority struct {
	Ministry string `yaml:"ministry"`
	Sector   string `yaml:"sector"`
	Type     string `yaml:"type"`
}

// WebhookConfig declares one outbound notification target.
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with apl platform init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return fmt.Errorf("config.platform.id is required")
	}
	if c.Platform.Kind != "ppp-platform" {
		return fmt.Errorf("config.platform.kind must be 'ppp-platform'")
	}
	for name, auth := range c.Authorities.Directory {
		if name == "" {
			return fmt.Errorf("config.authorities.directory contains empty authority name")
		}
		if auth.Ministry == "" {
			return fmt.Errorf("authority %s has no supervising ministry", name)
		}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("config.ai.temperature must be between 0 and 2")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		for _, evt := range wh.Events {
			if evt == "" {
				return fmt.Errorf("webhook %s has empty event filter", wh.Name)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "approline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(platformID string) string {
	return fmt.Sprintf(defaultTemplate, platformID)
}

// Default returns the default Config struct for a platform.
func Default(platformID string) *Config {
	var cfg Config
	cfg.Platform.ID = platformID
	cfg.Platform.Kind = "ppp-platform"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, platformID))).Decode(&cfg)
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

const defaultTemplate = `platform:
  id: %s
  kind: ppp-platform

authorities:
  directory:
    OGEFREM:
      ministry: "Ministère des Transports"
      sector: "Transport"
      type: "Établissement Public"
    REGIDESO:
      ministry: "Ministère des Ressources Hydrauliques"
      sector: "Eau"
      type: "Entreprise Publique"
    SNEL:
      ministry: "Ministère de l'Énergie"
      sector: "Énergie"
      type: "Entreprise Publique"
    RVA:
      ministry: "Ministère des Transports"
      sector: "Transport Aérien"
      type: "Établissement Public"
    "Ville de Kinshasa":
      ministry: "Ministère de l'Intérieur"
      sector: "Urbanisme"
      type: "Entité Territoriale Décentralisée"

ai:
  model: gpt-4o-mini
  temperature: 0.2

webhooks: []
`
