package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// topLevelKeys is the set of recognized top-level sections and fields.
var topLevelKeys = func() map[string]bool {
	keys := map[string]bool{}
	for _, key := range recognizedKeys {
		keys[strings.SplitN(key, ".", 2)[0]] = true
	}
	return keys
}()

// decodeStrict decodes merged config data onto defaults, failing closed.
// Unknown top-level sections become Extras (per-agent subtrees); unknown
// fields inside recognized sections and type mismatches are errors.
func decodeStrict(merged map[string]any) (*Settings, error) {
	recognized := map[string]any{}
	extras := map[string]map[string]any{}
	var problems []string

	for key, value := range merged {
		if topLevelKeys[key] {
			recognized[key] = value
			continue
		}
		if section, ok := value.(map[string]any); ok {
			extras[key] = section
			continue
		}
		problems = append(problems, fmt.Sprintf("unknown field: %s", key))
	}

	settings := DefaultSettings()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           settings,
		ErrorUnused:      true,
		TagName:          "yaml",
		WeaklyTypedInput: false,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(recognized); err != nil {
		problems = append(problems, categorizeDecodeErrors(err.Error())...)
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &ConfigurationError{Problems: problems}
	}

	if len(extras) > 0 {
		settings.Extras = extras
	}
	return settings, nil
}

// categorizeDecodeErrors turns mapstructure's aggregated error text into
// one problem line per failure.
func categorizeDecodeErrors(errMsg string) []string {
	var problems []string

	for _, line := range strings.Split(errMsg, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line == "" || strings.Contains(line, "error(s) decoding:") {
			continue
		}

		if idx := strings.Index(line, "has invalid keys:"); idx != -1 {
			keysStr := strings.TrimSpace(line[idx+len("has invalid keys:"):])
			for _, key := range strings.Split(keysStr, ",") {
				if key = strings.TrimSpace(key); key != "" {
					problems = append(problems, fmt.Sprintf("unknown field: %s", key))
				}
			}
			continue
		}

		problems = append(problems, fmt.Sprintf("type error: %s", line))
	}

	if len(problems) == 0 {
		problems = []string{errMsg}
	}
	return problems
}
