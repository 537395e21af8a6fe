package config

import internalconfig "github.com/SmitUplenchwar2687/Shield/internal/config"

// Config is the top-level configuration for a Shield process.
type Config = internalconfig.Config

// ServerConfig holds HTTP server settings.
type ServerConfig = internalconfig.ServerConfig

// LogConfig selects the log level and format.
type LogConfig = internalconfig.LogConfig

// PolicyConfig is the policy applied when a request does not carry one.
type PolicyConfig = internalconfig.PolicyConfig

// Default returns a Config with sensible defaults.
func Default() Config {
	return internalconfig.Default()
}

// LoadFile reads a YAML or JSON config file over the defaults.
func LoadFile(path string) (Config, error) {
	return internalconfig.LoadFile(path)
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	return internalconfig.WriteExample(path)
}
