package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Recognised persistent config keys (§6). Unknown keys are preserved on
// rewrite but have no runtime effect.
const (
	ConfigKeyUserAgent   = "default-user-agent"
	ConfigKeyConnections = "default-connections"
	ConfigKeyMaxSpeed    = "default-max-speed"
	ConfigKeyDirectory   = "default-directory"
	ConfigKeyCheckCert   = "check-certificate"
)

// PersistentConfigPath resolves $XDG_CONFIG_HOME/swiftget/config.json,
// falling back to ~/.config/swiftget/config.json (§6).
func PersistentConfigPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "swiftget", "config.json"), nil
}

// LoadPersistentConfig reads the flat string-map config file. A missing
// file is not an error: it returns an empty map, matching the merge-onto-
// defaults contract of §4.11.
func LoadPersistentConfig(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, NewResumeDataCorruptedError(path, err.Error())
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

// SavePersistentConfig writes the map back as indented JSON, creating
// parent directories as needed. Unknown keys already in the map (not
// touched by this call) are preserved because callers assign into the
// loaded map in place rather than rebuilding it.
func SavePersistentConfig(path string, m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyPersistentConfig overlays recognised keys from the persistent file
// onto cfg. The cmd package calls it after DefaultConfig and before
// LoadFromEnv, so environment variables and then flags override the file:
// precedence is flag > env > file > default.
func ApplyPersistentConfig(cfg *Config, m map[string]string) {
	if v, ok := m[ConfigKeyUserAgent]; ok && v != "" {
		cfg.DefaultUserAgent = v
	}
	if v, ok := m[ConfigKeyConnections]; ok && v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.DefaultConnections = n
		}
	}
	if v, ok := m[ConfigKeyMaxSpeed]; ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.DefaultMaxSpeed = n
		}
	}
	if v, ok := m[ConfigKeyDirectory]; ok && v != "" {
		cfg.DefaultDirectory = v
	}
	if v, ok := m[ConfigKeyCheckCert]; ok && v != "" {
		cfg.CheckCertificate = v == "true" || v == "1"
	}
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, &ValidationError{Field: "value", Message: "must be positive"}
	}
	return n, nil
}
