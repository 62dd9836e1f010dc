package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelSpec describes one billable model.
type ModelSpec struct {
	Name string `yaml:"name"`
	// DefaultTokens is granted to every newly created account.
	DefaultTokens int64 `yaml:"default_tokens"`
	// MaxTokens bounds the chat history sent along with a prompt.
	MaxTokens int `yaml:"max_tokens"`
}

// Catalog is the set of supported models plus the model billed when the
// requested one has run out of tokens.
type Catalog struct {
	FallbackModel string      `yaml:"fallback_model"`
	Models        []ModelSpec `yaml:"models"`
}

// DefaultCatalog mirrors the grants handed out on installation.
func DefaultCatalog() *Catalog {
	return &Catalog{
		FallbackModel: "gpt-3.5-turbo",
		Models: []ModelSpec{
			{Name: "gpt-3.5-turbo", DefaultTokens: 1000000, MaxTokens: 4096},
			{Name: "gpt-4", DefaultTokens: 10000, MaxTokens: 4096},
			{Name: "gpt-4-turbo", DefaultTokens: 10000, MaxTokens: 8192},
		},
	}
}

// LoadCatalog reads a YAML model catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse models file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid models file: %w", err)
	}
	return &c, nil
}

// Validate checks names are unique and the fallback model is listed.
func (c *Catalog) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model without name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model %q", m.Name)
		}
		if m.DefaultTokens < 0 {
			return fmt.Errorf("model %q: negative default_tokens", m.Name)
		}
		seen[m.Name] = true
	}
	if !seen[c.FallbackModel] {
		return fmt.Errorf("fallback model %q is not defined", c.FallbackModel)
	}
	return nil
}

// DefaultGrants returns a fresh map of model name to initial token balance.
func (c *Catalog) DefaultGrants() map[string]int64 {
	grants := make(map[string]int64, len(c.Models))
	for _, m := range c.Models {
		grants[m.Name] = m.DefaultTokens
	}
	return grants
}

// MaxTokens returns the history budget of a model, or 0 when it is unknown.
func (c *Catalog) MaxTokens(model string) int {
	for _, m := range c.Models {
		if m.Name == model {
			return m.MaxTokens
		}
	}
	return 0
}

// Supports reports whether the model is listed.
func (c *Catalog) Supports(model string) bool {
	for _, m := range c.Models {
		if m.Name == model {
			return true
		}
	}
	return false
}
