// Package setup registers the lite MCP server with a desktop MCP client by
// editing the client's JSON configuration file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key the server is registered under.
const ServerName = "periop-risk"

// ServerEntry is one MCP server in the desktop client configuration.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// DesktopConfig is the desktop client configuration. Keys other than
// mcpServers are preserved untouched.
type DesktopConfig struct {
	MCPServers map[string]ServerEntry
	other      map[string]json.RawMessage
}

// Options controls how the server entry is written.
type Options struct {
	ConfigPath        string // Desktop client config file; empty selects the OS default
	BinaryPath        string // Path to mcp-server-lite; empty searches common locations
	DataDir           string
	ParameterEncoding string
	MeasurementsURL   string
}

// DefaultConfigPath returns the desktop client's config file location for
// the running OS.
func DefaultConfigPath() (string, error) {
	return configPathFor(runtime.GOOS, os.Getenv)
}

func configPathFor(goos string, getenv func(string) string) (string, error) {
	var configDir string

	switch goos {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadDesktopConfig reads the config file. A missing file yields an empty
// configuration.
func LoadDesktopConfig(path string) (*DesktopConfig, error) {
	cfg := &DesktopConfig{
		MCPServers: make(map[string]ServerEntry),
		other:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.other, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerEntry)
	}
	return cfg, nil
}

// SaveDesktopConfig writes the config file, replacing it atomically.
func SaveDesktopConfig(path string, cfg *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]interface{}, len(cfg.other)+1)
	for k, v := range cfg.other {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Configure adds or updates the server entry and returns it.
func Configure(opts Options) (*ServerEntry, error) {
	path, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadDesktopConfig(path)
	if err != nil {
		return nil, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = findBinary()
		if err != nil {
			return nil, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := ServerEntry{
		Command: binaryPath,
		Env:     make(map[string]string),
	}
	if opts.DataDir != "" {
		entry.Env["PERIOP_DATA_DIR"] = opts.DataDir
	}
	if opts.ParameterEncoding != "" {
		entry.Env["PERIOP_PARAMETER_ENCODING"] = opts.ParameterEncoding
	}
	if opts.MeasurementsURL != "" {
		entry.Env["PERIOP_MEASUREMENTS_URL"] = opts.MeasurementsURL
	}

	cfg.MCPServers[ServerName] = entry
	if err := SaveDesktopConfig(path, cfg); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Remove deletes the server entry. It reports whether an entry existed.
func Remove(configPath string) (bool, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return false, err
	}
	cfg, err := LoadDesktopConfig(path)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerName]; !ok {
		return false, nil
	}
	delete(cfg.MCPServers, ServerName)
	return true, SaveDesktopConfig(path, cfg)
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultConfigPath()
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	const binaryName = "mcp-server-lite"

	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(home, ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", binaryName)
}

// Status represents the current setup status.
type Status struct {
	ConfigPath     string   `json:"config_path"`
	Configured     bool     `json:"configured"`
	ServerPath     string   `json:"server_path,omitempty"`
	BinaryFound    bool     `json:"binary_found"`
	DataDir        string   `json:"data_dir"`
	DataDirExists  bool     `json:"data_dir_exists"`
	DatabaseExists bool     `json:"database_exists"`
	Issues         []string `json:"issues,omitempty"`
}

// Healthy reports whether nothing blocks the client from starting the
// server. A missing data directory is created on first run.
func (s *Status) Healthy() bool {
	return s.Configured && s.BinaryFound
}

// GetStatus inspects the desktop client configuration and data directory.
func GetStatus(configPath string) (*Status, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	status := &Status{ConfigPath: path}

	cfg, err := LoadDesktopConfig(path)
	if err != nil {
		return nil, err
	}

	entry, ok := cfg.MCPServers[ServerName]
	if ok {
		status.Configured = true
		status.ServerPath = entry.Command
		status.DataDir = entry.Env["PERIOP_DATA_DIR"]

		info, err := os.Stat(entry.Command)
		switch {
		case err != nil:
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
		case info.Mode()&0111 == 0:
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
		default:
			status.BinaryFound = true
		}
	} else {
		status.Issues = append(status.Issues, fmt.Sprintf("%s is not configured in %s", ServerName, path))
	}

	if status.DataDir == "" {
		status.DataDir = DefaultDataDir()
	}
	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirExists = true
		if _, err := os.Stat(filepath.Join(status.DataDir, "calculations.db")); err == nil {
			status.DatabaseExists = true
		}
	}

	return status, nil
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".periop-risk-mcp")
}

// EnsureDataDir creates the data directory and its export directory.
func EnsureDataDir(dataDir string) error {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "exports"), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
