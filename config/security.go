package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Limits on config inputs. Config files are operator-supplied, but the
// loader still refuses pathological inputs rather than parse them.
const (
	maxConfigBytes  = 10 << 20
	maxNestingDepth = 100
	maxEnvValueLen  = 10000
	maxPathLen      = 4096
)

// validateConfigPath accepts JSON/YAML paths that do not escape the
// working directory. Absolute paths are allowed as-is; relative paths
// must stay local after cleaning.
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("config path exceeds %d bytes", maxPathLen)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return fmt.Errorf("unsupported config format %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}

	if !filepath.IsAbs(path) && !filepath.IsLocal(path) {
		return fmt.Errorf("config path %q escapes the working directory", path)
	}
	return nil
}

// safeReadFile loads a config file after path, type, and size checks.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config path %q is not a regular file", path)
	}
	if info.Size() > maxConfigBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit %d", info.Size(), maxConfigBytes)
	}

	return os.ReadFile(path)
}

// validateEnvVar rejects override values the flag/env layer should
// never accept: oversized payloads and embedded NUL bytes. Empty means
// "unset" and passes.
func validateEnvVar(key, value string) error {
	if value == "" {
		return nil
	}
	if len(value) > maxEnvValueLen {
		return fmt.Errorf("%s exceeds %d bytes", key, maxEnvValueLen)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}

// validateJSONDepth bounds bracket nesting before the document reaches
// the decoder. Brackets inside string literals do not count.
func validateJSONDepth(data []byte) error {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString:
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case b == '"':
			inString = true
		case b == '{' || b == '[':
			depth++
			if depth > maxNestingDepth {
				return fmt.Errorf("JSON nested deeper than %d levels", maxNestingDepth)
			}
		case b == '}' || b == ']':
			depth--
			if depth < 0 {
				return errors.New("unbalanced JSON brackets")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("JSON document leaves %d brackets unclosed", depth)
	}
	return nil
}
