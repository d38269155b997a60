// Package parse reads raw record fields given as a JSON or YAML document.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lherron/importlink/internal/domain"
)

// Format represents supported input formats
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat determines the format of a fields document.
func DetectFormat(data []byte) (Format, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", fmt.Errorf("empty input")
	}

	if strings.HasPrefix(trimmed, "{") {
		var js json.RawMessage
		if err := json.Unmarshal(data, &js); err == nil {
			return FormatJSON, nil
		}
		// If it starts with { but isn't valid JSON, that's an error
		return "", fmt.Errorf("input appears to be JSON but is invalid")
	}

	// YAML parser is very permissive; only a mapping is a fields document
	var yamlTest interface{}
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		if _, ok := yamlTest.(map[string]interface{}); ok {
			return FormatYAML, nil
		}
	}
	return "", fmt.Errorf("input is neither a JSON object nor a YAML mapping")
}

// ParseJSON parses a JSON object of fields.
func ParseJSON(data []byte) (domain.Fields, error) {
	var fields domain.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return fields, nil
}

// ParseYAML parses a YAML mapping of fields. Values follow the JSON rules:
// scalars, null, or a list of scalars.
func ParseYAML(data []byte) (domain.Fields, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	var fields domain.Fields
	if err := json.Unmarshal(js, &fields); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return fields, nil
}

// Fields parses data in the given format, detecting it when format is empty.
func Fields(data []byte, format string) (domain.Fields, error) {
	detected := Format(format)
	if format == "" {
		var err error
		if detected, err = DetectFormat(data); err != nil {
			return nil, err
		}
	}

	switch detected {
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML, "yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
