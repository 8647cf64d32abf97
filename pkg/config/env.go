package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// recognizedKeys maps every settings key (dot-nested) to its env var name.
// Env vars mirror keys in upper snake form, nesting via double underscore.
var recognizedKeys = []string{
	"llm_model",
	"llm_base_url",
	"llm_api_key",
	"llm_temperature",
	"llm_reasoning_effort",
	"llm_max_tokens",
	"recursion_limit",
	"supervisor_timeout",
	"specialist_timeout",
	"formatter_timeout",
	"llm_request_timeout",
	"summarization_enabled",
	"summarization_trigger_tokens",
	"summarization_keep_messages",
	"debug",
	"debug_prompt_max_length",
	"debug_show_response",
	"url_security.enabled",
	"url_security.allow_domains",
	"url_security.allow_ips",
	"url_security.allow_localhost",
	"url_security.log_blocked_attempts",
	"log_level",
	"log_dir",
	"log_filename",
	"server_host",
	"server_port",
}

func envVarName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

// envOverlay collects settings from process environment variables.
// List-valued keys accept comma-separated values.
func envOverlay() map[string]any {
	overlay := map[string]any{}
	for _, key := range recognizedKeys {
		value, ok := os.LookupEnv(envVarName(key))
		if !ok {
			continue
		}
		setNested(overlay, key, parseValue(value))
	}
	return overlay
}

// readEnvFiles reads .env.local then .env without mutating the process
// environment, returning any recognized settings they carry. Secrets files
// sit below the config file in precedence.
func readEnvFiles() (map[string]any, error) {
	overlay := map[string]any{}

	// .env is read first so .env.local wins.
	for _, file := range []string{".env", ".env.local"} {
		values, err := godotenv.Read(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		for _, key := range recognizedKeys {
			if value, ok := values[envVarName(key)]; ok {
				setNested(overlay, key, parseValue(value))
			}
		}
		for _, name := range apiKeyEnvVars {
			if value, ok := values[name]; ok && os.Getenv(name) == "" {
				// API keys are the one thing secrets files export to the
				// process, so provider clients resolve them uniformly.
				_ = os.Setenv(name, value)
			}
		}
	}

	return overlay, nil
}

// apiKeyEnvVars are checked in order for the LLM credential.
var apiKeyEnvVars = []string{"ENSEMBLE_API_KEY", "LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"}

// ResolveAPIKey returns the LLM credential from the environment.
func ResolveAPIKey() string {
	for _, name := range apiKeyEnvVars {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// expandEnvVars substitutes $VAR, ${VAR} and ${VAR:-default} references.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}

	return value
}

// ExpandEnvVarsInData walks parsed YAML data expanding env var references
// in every string value. Expanded strings are re-parsed so "${PORT:-8000}"
// becomes an int.
func ExpandEnvVarsInData(data any) any {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result

	default:
		return v
	}
}
