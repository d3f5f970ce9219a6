package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile configures an agent: which provider and model drive the loop, its
// bounds, and where its system prompt lives.
type Profile struct {
	Name          string  `yaml:"name"`
	AgentType     string  `yaml:"agent_type"`
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	MaxIterations int     `yaml:"max_iterations"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	// SystemPromptFile is resolved relative to the profile file.
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// DefaultProfile returns the profile used when no profile file is configured.
func DefaultProfile() Profile {
	return Profile{
		Name:          "communications",
		AgentType:     "CommunicationsAgent",
		Provider:      "anthropic",
		Model:         "claude-sonnet-4-20250514",
		MaxIterations: DefaultMaxIterations,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
	}
}

// LoadProfile reads a YAML profile. Unset fields keep DefaultProfile values
// and SystemPromptFile is made absolute relative to the profile directory.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read agent profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse agent profile %s: %w", path, err)
	}
	if p.SystemPromptFile != "" && !filepath.IsAbs(p.SystemPromptFile) {
		p.SystemPromptFile = filepath.Join(filepath.Dir(path), p.SystemPromptFile)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("agent profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the profile for missing or out-of-range values.
func (p Profile) Validate() error {
	var errs []error
	if p.Provider != "anthropic" && p.Provider != "openai" {
		errs = append(errs, fmt.Errorf("unsupported provider %q", p.Provider))
	}
	if p.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if p.MaxIterations <= 0 {
		errs = append(errs, errors.New("max_iterations must be positive"))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0 and 2"))
	}
	return errors.Join(errs...)
}

// LoadSystemPrompt reads a markdown prompt file. A missing or empty file is
// an error: there is no built-in fallback prompt.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("prompt file not found: %s", path)
		}
		return "", fmt.Errorf("load prompt %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return prompt, nil
}
