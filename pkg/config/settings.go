// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the runtime settings from layered sources:
// explicit overrides, process environment, a YAML config file, .env
// secrets files, and field defaults, highest priority first.
//
// Loading is fail-closed: a config file that exists but carries unknown
// fields inside recognized sections or type mismatches produces a
// ConfigurationError listing every problem. A missing file is fine.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ensemble-ai/ensemble/pkg/logger"
)

// DefaultConfigFile is searched in the working directory when no explicit
// path or ENSEMBLE_CONFIG_FILE env var is given.
const DefaultConfigFile = "config.yml"

// ConfigFileEnvVar overrides the config file search path. The named file
// must exist.
const ConfigFileEnvVar = "ENSEMBLE_CONFIG_FILE"

// ConfigurationError reports one or more problems found while loading
// settings. It is fatal at startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration invalid:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// URLSecuritySettings gates remote-access tools behind an allowlist.
type URLSecuritySettings struct {
	Enabled            bool     `yaml:"enabled"`
	AllowDomains       []string `yaml:"allow_domains"`
	AllowIPs           []string `yaml:"allow_ips"`
	AllowLocalhost     bool     `yaml:"allow_localhost"`
	LogBlockedAttempts bool     `yaml:"log_blocked_attempts"`
}

// Settings is the full recognized configuration surface. Timeout fields are
// seconds; use the *Timeout() helpers for time.Duration values.
type Settings struct {
	LLMModel           string  `yaml:"llm_model"`
	LLMBaseURL         string  `yaml:"llm_base_url"`
	LLMAPIKey          string  `yaml:"llm_api_key"`
	LLMTemperature     float64 `yaml:"llm_temperature"`
	LLMReasoningEffort string  `yaml:"llm_reasoning_effort"`
	LLMMaxTokens       int     `yaml:"llm_max_tokens"`

	RecursionLimit int `yaml:"recursion_limit"`

	SupervisorTimeoutSecs float64 `yaml:"supervisor_timeout"`
	SpecialistTimeoutSecs float64 `yaml:"specialist_timeout"`
	FormatterTimeoutSecs  float64 `yaml:"formatter_timeout"`
	LLMRequestTimeoutSecs float64 `yaml:"llm_request_timeout"`

	SummarizationEnabled       bool `yaml:"summarization_enabled"`
	SummarizationTriggerTokens int  `yaml:"summarization_trigger_tokens"`
	SummarizationKeepMessages  int  `yaml:"summarization_keep_messages"`

	Debug                bool `yaml:"debug"`
	DebugPromptMaxLength int  `yaml:"debug_prompt_max_length"`
	DebugShowResponse    bool `yaml:"debug_show_response"`

	URLSecurity URLSecuritySettings `yaml:"url_security"`

	LogLevel    string `yaml:"log_level"`
	LogDir      string `yaml:"log_dir"`
	LogFilename string `yaml:"log_filename"`

	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`

	// Extras holds unrecognized top-level sections, typically per-agent
	// subtrees like "weather_agent: {recursion_limit: 100}".
	Extras map[string]map[string]any `yaml:"-"`
}

// DefaultSettings returns settings with every field at its default.
func DefaultSettings() *Settings {
	return &Settings{
		LLMModel:       "gemini-2.5-flash",
		LLMBaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
		LLMTemperature: 0.3,

		RecursionLimit: 50,

		SupervisorTimeoutSecs: 120,
		SpecialistTimeoutSecs: 60,
		FormatterTimeoutSecs:  30,
		LLMRequestTimeoutSecs: 30,

		SummarizationTriggerTokens: 3000,
		SummarizationKeepMessages:  6,

		DebugPromptMaxLength: 1000,
		DebugShowResponse:    true,

		URLSecurity: URLSecuritySettings{
			LogBlockedAttempts: true,
		},

		LogLevel: "info",
		LogDir:   "./logs",

		ServerHost: "127.0.0.1",
		ServerPort: 8000,
	}
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func (s *Settings) SupervisorTimeout() time.Duration { return secondsToDuration(s.SupervisorTimeoutSecs) }
func (s *Settings) SpecialistTimeout() time.Duration { return secondsToDuration(s.SpecialistTimeoutSecs) }
func (s *Settings) FormatterTimeout() time.Duration  { return secondsToDuration(s.FormatterTimeoutSecs) }
func (s *Settings) LLMRequestTimeout() time.Duration { return secondsToDuration(s.LLMRequestTimeoutSecs) }

// ExtrasFor returns the unrecognized top-level section for name, typically
// a per-agent settings subtree. The second return reports presence.
func (s *Settings) ExtrasFor(name string) (map[string]any, bool) {
	extras, ok := s.Extras[name]
	return extras, ok
}

// CheckTimeoutOrdering warns when the timeout hierarchy is inverted.
// Violations never fail loading.
func (s *Settings) CheckTimeoutOrdering() {
	log := logger.GetLogger()
	if s.LLMRequestTimeoutSecs > s.SpecialistTimeoutSecs {
		log.Warn("llm_request_timeout exceeds specialist_timeout",
			"llm_request_timeout", s.LLMRequestTimeoutSecs,
			"specialist_timeout", s.SpecialistTimeoutSecs)
	}
	if s.SpecialistTimeoutSecs > s.SupervisorTimeoutSecs {
		log.Warn("specialist_timeout exceeds supervisor_timeout",
			"specialist_timeout", s.SpecialistTimeoutSecs,
			"supervisor_timeout", s.SupervisorTimeoutSecs)
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	// ConfigFile, when non-empty, is an explicit config path that must exist.
	ConfigFile string
	// Overrides are applied last, above environment variables. Keys use the
	// same names as the YAML surface; nested keys use dots ("url_security.enabled").
	Overrides map[string]any
	// SkipEnvFiles disables .env/.env.local loading (used by tests).
	SkipEnvFiles bool
}

// Load builds Settings from all layered sources.
func Load(opts LoadOptions) (*Settings, error) {
	merged := map[string]any{}

	if !opts.SkipEnvFiles {
		secrets, err := readEnvFiles()
		if err != nil {
			return nil, &ConfigurationError{Problems: []string{err.Error()}}
		}
		mergeMap(merged, secrets)
	}

	fileData, err := readConfigFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	mergeMap(merged, fileData)

	mergeMap(merged, envOverlay())

	for key, value := range opts.Overrides {
		setNested(merged, key, value)
	}

	settings, err := decodeStrict(merged)
	if err != nil {
		return nil, err
	}

	if settings.LLMAPIKey == "" {
		settings.LLMAPIKey = ResolveAPIKey()
	}

	settings.CheckTimeoutOrdering()
	return settings, nil
}

// readConfigFile loads and parses the YAML config file. Explicit and
// env-specified paths must exist; the default path may be absent.
func readConfigFile(explicit string) (map[string]any, error) {
	path := explicit
	mustExist := explicit != ""

	if path == "" {
		if envPath := os.Getenv(ConfigFileEnvVar); envPath != "" {
			path = envPath
			mustExist = true
		} else {
			path = DefaultConfigFile
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return map[string]any{}, nil
		}
		return nil, &ConfigurationError{Problems: []string{
			fmt.Sprintf("config file %s: %v", path, err),
		}}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Problems: []string{
			fmt.Sprintf("config file %s: %v", path, err),
		}}
	}
	if raw == nil {
		return map[string]any{}, nil
	}

	expanded, ok := ExpandEnvVarsInData(raw).(map[string]any)
	if !ok {
		return raw, nil
	}
	return expanded, nil
}

func mergeMap(dst, src map[string]any) {
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				mergeMap(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
}

func setNested(dst map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := dst[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			dst[part] = next
		}
		dst = next
	}
	dst[parts[len(parts)-1]] = value
}

var (
	defaultSettings *Settings
	defaultMu       sync.Mutex
)

// Default returns the process-wide settings, loading them lazily on first
// use. Engine constructors take *Settings explicitly; this accessor exists
// for deep call sites only.
func Default() *Settings {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSettings == nil {
		settings, err := Load(LoadOptions{})
		if err != nil {
			logger.GetLogger().Error("failed to load settings, using defaults", "error", err)
			settings = DefaultSettings()
		}
		defaultSettings = settings
	}
	return defaultSettings
}

// SetDefault installs settings as the process-wide default. Intended for
// main() after an explicit Load, and for tests.
func SetDefault(s *Settings) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSettings = s
}
