package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/ensemble-ai/ensemble/pkg/cli"
	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/logger"
	"github.com/ensemble-ai/ensemble/pkg/observability"
	"github.com/ensemble-ai/ensemble/pkg/web"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.GetLogger().Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}

// startWatching logs a notice when the effective config file changes on
// disk. Settings are not hot-reloaded; a restart applies them.
func startWatching(ctx context.Context, explicit string) func() {
	path := explicit
	if path == "" {
		path = os.Getenv(config.ConfigFileEnvVar)
	}
	if path == "" {
		path = config.DefaultConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		return func() {}
	}

	stop, err := config.WatchFile(ctx, path)
	if err != nil {
		logger.GetLogger().Warn("config watch unavailable", "error", err)
		return func() {}
	}
	return stop
}

// ChatCmd starts the interactive terminal session.
type ChatCmd struct{}

func (c *ChatCmd) Run(app *CLI) error {
	settings, err := app.loadSettings()
	if err != nil {
		return err
	}
	cleanup, err := app.initLogging(settings, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	shutdown, err := observability.Setup(ctx, observability.DefaultServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	defer startWatching(ctx, app.Config)()

	bot, err := buildChatbot(settings)
	if err != nil {
		return err
	}
	defer bot.Close()

	return cli.NewChat(bot.Executor).Run(ctx)
}

// WebCmd starts the WebSocket chat server.
type WebCmd struct {
	Host string `help:"Bind address (default: server_host setting)."`
	Port int    `help:"Listen port (default: server_port setting)."`
}

func (c *WebCmd) Run(app *CLI) error {
	settings, err := app.loadSettings()
	if err != nil {
		return err
	}
	cleanup, err := app.initLogging(settings, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	shutdown, err := observability.Setup(ctx, observability.DefaultServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	defer startWatching(ctx, app.Config)()

	bot, err := buildChatbot(settings)
	if err != nil {
		return err
	}
	defer bot.Close()

	host := settings.ServerHost
	if c.Host != "" {
		host = c.Host
	}
	port := settings.ServerPort
	if c.Port != 0 {
		port = c.Port
	}

	return web.NewServer(bot.Executor).Start(ctx, host, port)
}

// AgentsCmd lists the registered agents.
type AgentsCmd struct{}

func (c *AgentsCmd) Run(app *CLI) error {
	settings, err := app.loadSettings()
	if err != nil {
		return err
	}
	cleanup, err := app.initLogging(settings, false)
	if err != nil {
		return err
	}
	defer cleanup()

	bot, err := buildChatbot(settings)
	if err != nil {
		return err
	}
	defer bot.Close()

	agents := bot.Registry.All()
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}
	for _, a := range agents {
		summary := a.Capabilities
		if idx := strings.IndexByte(summary, '\n'); idx >= 0 {
			summary = summary[:idx]
		}
		fmt.Printf("%-16s %-48s %d tools\n", a.Name, summary, len(a.Tools))
	}
	return nil
}

// InfoCmd prints the effective configuration summary.
type InfoCmd struct{}

func (c *InfoCmd) Run(app *CLI) error {
	settings, err := app.loadSettings()
	if err != nil {
		return err
	}
	cleanup, err := app.initLogging(settings, false)
	if err != nil {
		return err
	}
	defer cleanup()

	apiKey := "(not set)"
	if settings.LLMAPIKey != "" {
		apiKey = "(set)"
	}

	fmt.Printf("model:               %s\n", settings.LLMModel)
	fmt.Printf("base_url:            %s\n", settings.LLMBaseURL)
	fmt.Printf("api_key:             %s\n", apiKey)
	fmt.Printf("temperature:         %g\n", settings.LLMTemperature)
	fmt.Printf("recursion_limit:     %d\n", settings.RecursionLimit)
	fmt.Printf("supervisor_timeout:  %s\n", settings.SupervisorTimeout())
	fmt.Printf("specialist_timeout:  %s\n", settings.SpecialistTimeout())
	fmt.Printf("formatter_timeout:   %s\n", settings.FormatterTimeout())
	fmt.Printf("llm_request_timeout: %s\n", settings.LLMRequestTimeout())
	fmt.Printf("summarization:       %t\n", settings.SummarizationEnabled)
	fmt.Printf("url_security:        %t\n", settings.URLSecurity.Enabled)
	fmt.Printf("server:              %s:%d\n", settings.ServerHost, settings.ServerPort)
	return nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("ensemble version %s\n", buildVersion())
	return nil
}

// buildVersion reports the module version stamped into the binary, "dev"
// for unstamped builds.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}
