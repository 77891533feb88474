// Package config holds the server configuration: built-in defaults, an
// optional YAML file, and the command line on top.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port      int    `yaml:"port"`
	Workers   int    `yaml:"workers"`
	CacheSize int64  `yaml:"cache_size"`
	DocRoot   string `yaml:"doc_root"`
	LogFile   string `yaml:"log_file"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Port:      8080,
		Workers:   runtime.NumCPU(),
		CacheSize: 50 << 20,
		DocRoot:   ".",
		LogFile:   "log.txt",
	}
}

// LoadFile overlays settings from a YAML file. A missing file is not an
// error; the defaults stand.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

// ParseArgs applies the positional command line: <port> <num-workers>.
func (c *Config) ParseArgs(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected <port> <num-workers>")
	}

	port, err := strconv.Atoi(args[0])
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("bad port %q", args[0])
	}

	workers, err := strconv.Atoi(args[1])
	if err != nil || workers <= 0 {
		return fmt.Errorf("bad worker count %q", args[1])
	}

	c.Port = port
	c.Workers = workers
	return nil
}
