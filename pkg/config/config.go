// Package config loads and watches the YAML configuration of the
// execution core: external tool paths, the streaming log directory, and
// remote CLI conventions. Paths are never process-wide globals; callers
// pass the loaded values into the components that need them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bmops/provisioner/internal/lg"
)

// Tools holds the paths of every external executable the core spawns.
type Tools struct {
	IP              string `yaml:"ip" validate:"required"`
	Ping            string `yaml:"ping" validate:"required"`
	SSHKeygen       string `yaml:"sshKeygen" validate:"required"`
	AnsiblePlaybook string `yaml:"ansiblePlaybook" validate:"required"`
	AnsibleVault    string `yaml:"ansibleVault" validate:"required"`
	RemoteCLI       string `yaml:"remoteCli" validate:"required"`
	Timeout         string `yaml:"timeout" validate:"required"`
}

type Config struct {
	Tools       Tools  `yaml:"tools"`
	LogDir      string `yaml:"logDir" validate:"required"`
	PasswordVar string `yaml:"passwordVar" validate:"required"`
	// InvokeTimeoutSeconds is handed to the external timeout wrapper for
	// every remote CLI call.
	InvokeTimeoutSeconds int `yaml:"invokeTimeoutSeconds" validate:"gt=0"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Tools: Tools{
			IP:              "ip",
			Ping:            "ping",
			SSHKeygen:       "ssh-keygen",
			AnsiblePlaybook: "ansible-playbook",
			AnsibleVault:    "ansible-vault",
			RemoteCLI:       "esxcli",
			Timeout:         "timeout",
		},
		LogDir:               "/var/log/provisioner",
		PasswordVar:          "VI_PASSWORD",
		InvokeTimeoutSeconds: 120,
	}
}

// InvokeTimeout returns the remote CLI budget as a duration.
func (c *Config) InvokeTimeout() time.Duration {
	return time.Duration(c.InvokeTimeoutSeconds) * time.Second
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: failed to read file %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("load: failed to parse YAML in %s: %w", path, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("load: invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

// Watch reloads the file on every write event and hands the new config to
// onChange. It returns a stop function releasing the watcher. Reload
// failures are logged and the previous config stays in effect.
func Watch(path string, log lg.Logger, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed", lg.String("path", path), lg.Err(err))
					continue
				}
				log.Info("config reloaded", lg.String("path", path))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", lg.Err(err))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
