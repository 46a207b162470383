package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"scenecraft/internal/orchestrator"
	"scenecraft/internal/stage"
)

// loadOverrides reads a YAML file mapping stage names to override keys:
//
//	script:
//	  premise: a lighthouse keeper adopts a crab
//	music:
//	  include_vocals: false
//
// Scalars become their text form. Mappings and lists are encoded as JSON, so a
// structured_json "scene" override can be written inline as YAML.
func loadOverrides(path string) (map[stage.ID]orchestrator.Overrides, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	return parseOverrides(data)
}

func parseOverrides(data []byte) (map[stage.ID]orchestrator.Overrides, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	out := make(map[stage.ID]orchestrator.Overrides, len(raw))
	for name, values := range raw {
		id, err := stage.Parse(name)
		if err != nil {
			return nil, err
		}
		overrides := out[id]
		if overrides == nil {
			overrides = make(orchestrator.Overrides, len(values))
			out[id] = overrides
		}
		for key, value := range values {
			text, err := overrideText(value)
			if err != nil {
				return nil, fmt.Errorf("override %s.%s: %w", id, key, err)
			}
			overrides[key] = text
		}
	}
	return out, nil
}

func overrideText(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
}
