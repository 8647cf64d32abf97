// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ensemble runs a multi-agent chatbot.
//
// Usage:
//
//	ensemble chat
//	ensemble web --port 8000
//	ensemble agents
//	ensemble info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" help:"Start an interactive terminal chat session."`
	Web     WebCmd     `cmd:"" help:"Start the WebSocket chat server."`
	Agents  AgentsCmd  `cmd:"" help:"List registered agents."`
	Info    InfoCmd    `cmd:"" help:"Print the effective configuration."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config      string           `short:"c" help:"Path to config file (default: config.yml in the working directory)." type:"path"`
	VersionFlag kong.VersionFlag `name:"version" help:"Show version and exit."`
	Verbose     int              `short:"v" type:"counter" help:"Increase verbosity (-v debug logs, -vv also logs prompts)."`
	Quiet       bool             `short:"q" help:"Only warnings and errors."`
	LogLevel    string           `help:"Log level (debug, info, warn, error). Overrides -v/-q."`
	LogFile     string           `help:"Log file path (chat mode defaults to a timestamped file under log_dir)."`
	Debug       bool             `help:"Enable prompt debug logging."`
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"--help"}
	}

	app := &CLI{}
	parser := kong.Must(app,
		kong.Name("ensemble"),
		kong.Description("Multi-agent chatbot runtime."),
		kong.UsageOnError(),
		kong.Vars{"version": buildVersion()},
	)

	kctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	kctx.FatalIfErrorf(kctx.Run(app))
}

// loadSettings builds the effective configuration for one invocation and
// installs it as the process default.
func (c *CLI) loadSettings() (*config.Settings, error) {
	overrides := map[string]any{}
	if c.Debug || c.Verbose >= 2 {
		overrides["debug"] = true
	}

	settings, err := config.Load(config.LoadOptions{
		ConfigFile: c.Config,
		Overrides:  overrides,
	})
	if err != nil {
		return nil, err
	}
	config.SetDefault(settings)
	return settings, nil
}

// logLevel resolves the effective level: explicit --log-level wins, then
// the -v/-q flags, then the configured default.
func (c *CLI) logLevel(settings *config.Settings) (slog.Level, error) {
	name := settings.LogLevel
	switch {
	case c.LogLevel != "":
		name = c.LogLevel
	case c.Verbose > 0:
		name = "debug"
	case c.Quiet:
		name = "warn"
	}
	return logger.ParseLevel(name)
}

// initLogging routes logs to a session file in terminal-chat mode and to
// stderr everywhere else, so chat output stays clean and web mode stays
// 12-factor. Returns a cleanup for the log file, if one was opened.
func (c *CLI) initLogging(settings *config.Settings, toFile bool) (func(), error) {
	level, err := c.logLevel(settings)
	if err != nil {
		return nil, err
	}

	if !toFile {
		logger.Init(level, os.Stderr, "simple")
		return func() {}, nil
	}

	path := c.LogFile
	if path == "" {
		path = logger.SessionLogPath(settings.LogDir, settings.LogFilename)
	}
	file, cleanup, err := logger.OpenLogFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.Init(level, file, "verbose")
	return cleanup, nil
}
