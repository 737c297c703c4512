// Package catalog loads the provider descriptors (primary inference service
// plus ordered backups) once at startup into an immutable Catalog.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind selects the adapter used to talk to a provider.
type Kind string

const (
	KindPrimary   Kind = "primary"
	KindGemini    Kind = "gemini"
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindVertex    Kind = "vertex" // Gemini on Vertex AI with an API key
)

const (
	PrimaryID = "primary"

	defaultPrimaryBaseURL = "http://localhost:8000"
	defaultPrimaryTimeout = 30 * time.Second
	defaultBackupTimeout  = 60 * time.Second
)

// ErrNoUsableProviders is returned when neither the primary nor any backup
// can be called.
var ErrNoUsableProviders = errors.New("no usable providers configured")

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// FileConfig is the YAML provider file.
type FileConfig struct {
	Primary         *ProviderConfig  `yaml:"primary"`
	PreferredBackup string           `yaml:"preferred_backup"`
	Backups         []ProviderConfig `yaml:"backups"`
}

type ProviderConfig struct {
	ID            string            `yaml:"id"`
	Kind          string            `yaml:"kind"`
	Enabled       *bool             `yaml:"enabled"`
	Preferred     bool              `yaml:"preferred"`
	BaseURL       string            `yaml:"base_url"`
	Model         string            `yaml:"model"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	Timeout       string            `yaml:"timeout"`
	SystemPrompt  string            `yaml:"system_prompt"`
	StaticHeaders map[string]string `yaml:"static_headers"`
	OAuth         *OAuthConfig      `yaml:"oauth"`
}

// OAuthConfig enables client-credentials auth towards the primary service.
type OAuthConfig struct {
	TokenURL        string   `yaml:"token_url"`
	ClientID        string   `yaml:"client_id"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	Scopes          []string `yaml:"scopes"`
}

// OAuth is the resolved client-credentials configuration.
type OAuth struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Descriptor is one provider as resolved from file and environment.
type Descriptor struct {
	Name          string            `json:"name"`
	Kind          Kind              `json:"kind"`
	BaseURL       string            `json:"base_url"`
	Model         string            `json:"model,omitempty"`
	Timeout       time.Duration     `json:"-"`
	Enabled       bool              `json:"enabled"`
	Preferred     bool              `json:"preferred"`
	CredentialEnv string            `json:"credential_env,omitempty"`
	Credential    string            `json:"-"`
	SystemPrompt  string            `json:"-"`
	StaticHeaders map[string]string `json:"-"`
	OAuth         *OAuth            `json:"-"`
}

// Catalog is immutable after construction and safe for concurrent reads.
type Catalog struct {
	primary   Descriptor
	backups   []Descriptor
	preferred string
}

// Load reads the provider file at path (or the first default location that
// exists when path is empty) and applies environment overrides.
func Load(path string) (*Catalog, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, os.Getenv)
}

// New resolves cfg against getenv. Backups fall back to the built-in list
// when the file declares none.
func New(cfg FileConfig, getenv func(string) string) (*Catalog, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	primaryCfg := defaultPrimary()
	if cfg.Primary != nil {
		primaryCfg = *cfg.Primary
		if strings.TrimSpace(primaryCfg.ID) == "" {
			primaryCfg.ID = PrimaryID
		}
		primaryCfg.Kind = string(KindPrimary)
	}
	primary, err := normalizeConfig(primaryCfg, getenv)
	if err != nil {
		return nil, err
	}

	backupCfgs := cfg.Backups
	if len(backupCfgs) == 0 {
		backupCfgs = defaultBackups()
	}

	selector := normalizeProviderID(getenv("AGRO_PREFERRED_BACKUP"))
	if selector == "" {
		selector = normalizeProviderID(cfg.PreferredBackup)
	}

	seen := map[string]struct{}{primary.Name: {}}
	backups := make([]Descriptor, 0, len(backupCfgs))
	for _, bc := range backupCfgs {
		d, err := normalizeConfig(bc, getenv)
		if err != nil {
			return nil, err
		}
		if d.Kind == KindPrimary {
			return nil, fmt.Errorf("provider %q: kind primary is reserved", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("provider %q declared twice", d.Name)
		}
		seen[d.Name] = struct{}{}
		if selector != "" {
			d.Preferred = d.Name == selector
		}
		backups = append(backups, d)
	}

	c := &Catalog{primary: primary, backups: backups, preferred: selector}
	if !primary.Enabled && len(c.Candidates()) == 0 {
		return nil, ErrNoUsableProviders
	}
	return c, nil
}

// Primary returns the primary inference service descriptor.
func (c *Catalog) Primary() Descriptor {
	return copyDescriptor(c.primary)
}

// Backups returns all backups in registration order, enabled or not.
func (c *Catalog) Backups() []Descriptor {
	out := make([]Descriptor, 0, len(c.backups))
	for _, d := range c.backups {
		out = append(out, copyDescriptor(d))
	}
	return out
}

// Candidates returns the enabled backups in attempt order: the first
// preferred backup (registration order) moves to the front, the rest keep
// their registration order.
func (c *Catalog) Candidates() []Descriptor {
	enabled := make([]Descriptor, 0, len(c.backups))
	front := -1
	for _, d := range c.backups {
		if !d.Enabled {
			continue
		}
		if front < 0 && d.Preferred {
			front = len(enabled)
		}
		enabled = append(enabled, copyDescriptor(d))
	}
	if front > 0 {
		head := enabled[front]
		copy(enabled[1:front+1], enabled[:front])
		enabled[0] = head
	}
	return enabled
}

// Lookup finds a provider (primary included) by name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	name = normalizeProviderID(name)
	if name == c.primary.Name {
		return copyDescriptor(c.primary), true
	}
	for _, d := range c.backups {
		if d.Name == name {
			return copyDescriptor(d), true
		}
	}
	return Descriptor{}, false
}

// PreferredSelector is the operator selector from env or file, if any.
func (c *Catalog) PreferredSelector() string {
	return c.preferred
}

// IsPlaceholderCredential reports whether a credential is missing or one of
// the sample values shipped in env templates.
func IsPlaceholderCredential(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return true
	}
	switch v {
	case "changeme", "change-me", "placeholder", "none", "null", "todo", "dummy":
		return true
	}
	if strings.HasPrefix(v, "your_") || strings.HasPrefix(v, "your-") || strings.HasSuffix(v, "_here") {
		return true
	}
	if strings.Trim(v, "x*") == "" {
		return true
	}
	return false
}

func readFile(path string) (FileConfig, error) {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return FileConfig{}, err
	}
	if resolved == "" {
		return FileConfig{}, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to read providers file %q: %w", resolved, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to parse providers file %q: %w", resolved, err)
	}
	return cfg, nil
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/providers.yaml",
		"/etc/agroshakti/providers.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "agroshakti", "providers.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func normalizeConfig(cfg ProviderConfig, getenv func(string) string) (Descriptor, error) {
	id := normalizeProviderID(cfg.ID)
	if !providerIDRegexp.MatchString(id) {
		return Descriptor{}, fmt.Errorf("invalid provider id %q", cfg.ID)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(cfg.Kind)))
	switch kind {
	case KindPrimary, KindGemini, KindOpenAI, KindAnthropic, KindVertex:
	case "":
		return Descriptor{}, fmt.Errorf("provider %q: kind is required", id)
	default:
		return Descriptor{}, fmt.Errorf("provider %q: unknown kind %q", id, cfg.Kind)
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}
	if raw := strings.TrimSpace(getenv(providerEnvName(id, "ENABLED"))); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			enabled = parsed
		}
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if kind == KindPrimary {
		if v := strings.TrimSpace(getenv("FLASK_ML_BASE_URL")); v != "" {
			baseURL = v
		}
	}
	if v := strings.TrimSpace(getenv(providerEnvName(id, "BASE_URL"))); v != "" {
		baseURL = v
	}
	if baseURL == "" {
		baseURL = defaultBaseURL(kind)
	}

	model := strings.TrimSpace(cfg.Model)
	if v := strings.TrimSpace(getenv(providerEnvName(id, "MODEL"))); v != "" {
		model = v
	}

	credentialEnv := providerEnvName(id, "API_KEY")
	credential := strings.TrimSpace(getenv(credentialEnv))
	if credential == "" && strings.TrimSpace(cfg.APIKeyEnv) != "" {
		credentialEnv = strings.TrimSpace(cfg.APIKeyEnv)
		credential = strings.TrimSpace(getenv(credentialEnv))
	}

	timeout := defaultBackupTimeout
	if kind == KindPrimary {
		timeout = defaultPrimaryTimeout
	}
	if raw := strings.TrimSpace(cfg.Timeout); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}
	if raw := strings.TrimSpace(getenv(providerEnvName(id, "TIMEOUT"))); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	d := Descriptor{
		Name:          id,
		Kind:          kind,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Model:         model,
		Timeout:       timeout,
		Preferred:     cfg.Preferred,
		CredentialEnv: credentialEnv,
		Credential:    credential,
		SystemPrompt:  strings.TrimSpace(cfg.SystemPrompt),
		StaticHeaders: normalizeHeaders(cfg.StaticHeaders),
		OAuth:         resolveOAuth(cfg.OAuth, getenv),
	}

	if kind == KindPrimary {
		// The primary authenticates with OAuth or not at all; a credential is optional.
		if IsPlaceholderCredential(d.Credential) {
			d.Credential = ""
		}
		d.Enabled = enabled && d.BaseURL != ""
	} else {
		d.Enabled = enabled && d.BaseURL != "" && !IsPlaceholderCredential(credential)
	}
	return d, nil
}

func resolveOAuth(cfg *OAuthConfig, getenv func(string) string) *OAuth {
	if cfg == nil || strings.TrimSpace(cfg.TokenURL) == "" || strings.TrimSpace(cfg.ClientID) == "" {
		return nil
	}
	secret := ""
	if env := strings.TrimSpace(cfg.ClientSecretEnv); env != "" {
		secret = strings.TrimSpace(getenv(env))
	}
	return &OAuth{
		TokenURL:     strings.TrimSpace(cfg.TokenURL),
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: secret,
		Scopes:       append([]string(nil), cfg.Scopes...),
	}
}

func defaultBaseURL(kind Kind) string {
	switch kind {
	case KindPrimary:
		return defaultPrimaryBaseURL
	case KindGemini:
		return "https://generativelanguage.googleapis.com"
	case KindVertex:
		return "https://aiplatform.googleapis.com"
	case KindAnthropic:
		return "https://api.anthropic.com"
	default:
		return ""
	}
}

func normalizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	normalized := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if key == "" || value == "" {
			continue
		}
		normalized[key] = value
	}
	return normalized
}

func copyDescriptor(d Descriptor) Descriptor {
	if len(d.StaticHeaders) > 0 {
		cp := make(map[string]string, len(d.StaticHeaders))
		for k, v := range d.StaticHeaders {
			cp[k] = v
		}
		d.StaticHeaders = cp
	}
	if d.OAuth != nil {
		o := *d.OAuth
		o.Scopes = append([]string(nil), o.Scopes...)
		d.OAuth = &o
	}
	return d
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func providerEnvName(id, suffix string) string {
	upper := strings.ToUpper(id)
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	upper = replacer.Replace(upper)
	return fmt.Sprintf("AGRO_%s_%s", upper, suffix)
}

func defaultPrimary() ProviderConfig {
	return ProviderConfig{ID: PrimaryID, Kind: string(KindPrimary)}
}

func defaultBackups() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:        "gemini",
			Kind:      string(KindGemini),
			Model:     "gemini-1.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		{
			ID:        "groq",
			Kind:      string(KindOpenAI),
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama-3.1-8b-instant",
			APIKeyEnv: "GROQ_API_KEY",
		},
		{
			ID:        "claude",
			Kind:      string(KindAnthropic),
			Model:     "claude-3-5-haiku-latest",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		{
			ID:        "openrouter",
			Kind:      string(KindOpenAI),
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "meta-llama/llama-3.1-8b-instruct",
			APIKeyEnv: "OPENROUTER_API_KEY",
			StaticHeaders: map[string]string{
				"HTTP-Referer": "https://agroshakti.in",
				"X-Title":      "AgroShakti",
			},
		},
	}
}
