// Package config parses the server process's command-line flags and
// environment fallback. There is no file-based configuration loader here —
// unlike the teacher's YAML config, every SPEC_FULL surface (host, port,
// api key, timeouts, prompt strings, startup sources) is wire contract, not
// a deployment-time configuration file.
package config

import (
	"flag"
	"os"
	"strings"
	"time"
)

// Config holds every flag/env-derived setting the server needs to start.
type Config struct {
	Host   string
	Port   int
	APIKey string

	WorkspaceRoot string

	PS1             string
	PS2             string
	DefaultTimeout  time.Duration
	StartupTimeout  time.Duration
	RecoveryTimeout time.Duration
	StartupSources  []string

	LogLevel  string
	LogFormat string
}

// Parse reads args (normally os.Args[1:]) into a Config, applying the
// SWE_REX_API_KEY environment fallback when --api-key was not given.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("rex-server", flag.ContinueOnError)

	host := fs.String("host", "0.0.0.0", "address to bind the HTTP server to")
	port := fs.Int("port", 8880, "port to bind the HTTP server to")
	apiKey := fs.String("api-key", "", "shared token required in the X-API-Key header; empty disables auth")
	workspaceRoot := fs.String("workspace-root", "", "root directory file ops are resolved against; empty means absolute paths are used as-is")
	ps1 := fs.String("ps1", "SWE-REX-PS1>", "PS1 prompt string used to synchronize on an idle shell")
	ps2 := fs.String("ps2", "SWE-REX-PS2>", "PS2 continuation prompt string")
	defaultTimeout := fs.Duration("default-timeout", 30*time.Second, "default run_in_session command timeout")
	startupTimeout := fs.Duration("startup-timeout", 10*time.Second, "time allowed for startup sources and prompt sync")
	recoveryTimeout := fs.Duration("recovery-timeout", 5*time.Second, "grace period for the shell to re-prompt after SIGINT")
	startupSources := fs.String("startup-source", "", "comma-separated list of files to `source` before a session is usable")
	logLevel := fs.String("log-level", "info", "debug, info, warn, error")
	logFormat := fs.String("log-format", "json", "json or text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *apiKey == "" {
		*apiKey = os.Getenv("SWE_REX_API_KEY")
	}

	var sources []string
	if *startupSources != "" {
		for _, s := range strings.Split(*startupSources, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
	}

	return &Config{
		Host:            *host,
		Port:            *port,
		APIKey:          *apiKey,
		WorkspaceRoot:   *workspaceRoot,
		PS1:             *ps1,
		PS2:             *ps2,
		DefaultTimeout:  *defaultTimeout,
		StartupTimeout:  *startupTimeout,
		RecoveryTimeout: *recoveryTimeout,
		StartupSources:  sources,
		LogLevel:        *logLevel,
		LogFormat:       *logFormat,
	}, nil
}
