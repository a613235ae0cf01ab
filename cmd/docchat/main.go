// Package main is the docchat CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hyperjump/docchat/internal/api"
	"github.com/hyperjump/docchat/internal/chat"
	"github.com/hyperjump/docchat/internal/cli"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/inspect"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/session"
	"github.com/hyperjump/docchat/internal/upload"
	"github.com/hyperjump/docchat/internal/watcher"
	"github.com/hyperjump/docchat/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/docchat/config.yaml"
	envFile           = ".env"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if neither exists the built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// commonFlags are shared by every command that talks to the backend.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", "", "backend URL (default from config, or "+config.DefaultBaseURL+")"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// env is what every command needs after flag parsing.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	client *api.Client
	format cli.OutputFormat
}

// setup loads config (file, .env, DOCCHAT_* variables, then flags), builds the logger and client.
func setup(f commonFlags, interactive bool) (*env, error) {
	format, err := cli.ParseFormat(*f.output)
	if err != nil {
		return nil, err
	}
	cfg, resolved, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ApplyEnv(cfg, envFile); err != nil {
		return nil, err
	}
	if *f.serverURL != "" {
		cfg.Backend.BaseURL = strings.TrimRight(*f.serverURL, "/")
	}
	debugMode := cfg.Debug || *f.debug
	newLogger := utils.NewLogger
	if interactive {
		newLogger = utils.NewInteractiveLogger
	}
	logger, err := newLogger(debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("debug", debugMode),
	)
	client := api.NewClient(cfg.Backend.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Backend.RequestTimeout),
	)
	return &env{cfg: cfg, logger: logger, client: client, format: format}, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "chat":
		runChat()
	case "upload":
		runUpload()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("docchat version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	common := addCommonFlags(fs)
	dropDir := fs.String("drop-dir", "", "watch this folder and upload PDFs placed into it")
	watch := fs.Bool("watch", false, "watch the configured drop folder (upload.drop_directory)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	e, err := setup(common, true)
	if err != nil {
		fail("%v", err)
	}
	defer e.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repl := cli.NewRepl(os.Stdout, inspect.File,
		cli.WithFormat(e.format),
		cli.WithTimestamps(e.cfg.Chat.ShowTimestampsOrDefault()),
		cli.WithLogger(e.logger),
	)
	sess := session.New(e.client,
		session.WithLogger(e.logger),
		session.WithUploadOptions(upload.WithObserver(repl.UploadState)),
		session.WithChatOptions(
			chat.WithMessageHook(repl.PrintMessage),
			chat.WithSuggestions(e.cfg.Chat.Suggestions),
		),
		session.WithViewHook(repl.ViewChanged),
	)
	defer sess.Close()
	repl.Attach(sess)

	dir := *dropDir
	if dir == "" && *watch {
		dir = e.cfg.Upload.DropDirectory
	}
	if dir != "" {
		w := watcher.NewWatcher(dir, sess, inspect.File,
			watcher.WithLogger(e.logger),
			watcher.WithSettle(e.cfg.Upload.DropSettle),
			watcher.WithResultHook(repl.DropResult),
		)
		if err := w.Start(ctx); err != nil {
			fail("Failed to watch %s: %v", dir, err)
		}
		defer w.Stop()
		if e.format == cli.OutputText {
			fmt.Printf("Watching %s for PDFs.\n", w.Dir())
		}
	}

	if fs.NArg() > 0 {
		repl.Handle(ctx, strings.Join(fs.Args(), " "))
	}
	if err := repl.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		fail("Chat failed: %v", err)
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fail("Usage: docchat upload [flags] <file>")
	}

	e, err := setup(common, false)
	if err != nil {
		fail("%v", err)
	}
	defer e.logger.Sync()

	file, err := inspect.File(fs.Arg(0))
	if err != nil {
		fail("Cannot read %s: %v", fs.Arg(0), err)
	}
	uc := upload.NewController(e.client, nil, upload.WithLogger(e.logger))
	if err := uc.Select(context.Background(), file); err != nil {
		_ = cli.WriteError(os.Stderr, err, e.format)
		os.Exit(1)
	}
	if err := cli.WriteUploadResult(os.Stdout, uc.Result(), &file, e.format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	common := addCommonFlags(fs)
	docID := fs.String("doc", "", "PDF ID returned by upload")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	question := buildQuestion(fs.Args())
	if *docID == "" || question == "" {
		fail("Usage: docchat ask [flags] --doc <id> <question>")
	}

	e, err := setup(common, false)
	if err != nil {
		fail("%v", err)
	}
	defer e.logger.Sync()

	var answer *models.Message
	c := chat.NewController(e.client, *docID,
		chat.WithLogger(e.logger),
		chat.WithMessageHook(func(m models.Message) {
			if m.Role == models.RoleAssistant {
				answer = &m
			}
		}),
	)
	defer c.Close()
	c.Send(context.Background(), question)
	if answer == nil {
		fail("No answer received")
	}
	if err := cli.WriteMessage(os.Stdout, *answer, e.format, cli.TextOptions{}); err != nil {
		fail("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))

	e, err := setup(common, false)
	if err != nil {
		fail("%v", err)
	}
	defer e.logger.Sync()

	if err := e.client.Ping(context.Background()); err != nil {
		fail("Backend %s unreachable: %v", e.client.BaseURL(), err)
	}
	fmt.Printf("backend: %s   # reachable\n", e.client.BaseURL())
}

func runConfig() {
	if len(os.Args) < 3 || os.Args[2] != "init" {
		fail("Usage: docchat config init [--config path] [--force]")
	}
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[3:])

	if err := initConfig(*path, *force); err != nil {
		fail("%v", err)
	}
	fmt.Printf("Wrote %s\n", *path)
}

// initConfig writes a config file holding the defaults. An existing file is kept unless force is set.
func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return config.Save(path, cfg)
}

func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that follow positional arguments to the front, so
// "docchat ask what is this --doc abc" parses like "docchat ask --doc abc what is this".
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`docchat - Chat with a PDF document

Usage:
  docchat chat [flags] [file]              Start an interactive session (optionally upload file first)
  docchat upload [flags] <file>            Upload a PDF and print its PDF ID
  docchat ask [flags] --doc <id> <question>  Ask one question about an uploaded PDF
  docchat status [flags]                   Check that the backend is reachable
  docchat config init [--config path]      Write a config file with the defaults (default: ./config.yaml)
  docchat version                          Show version
  docchat help                             Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/docchat/config.yaml, then ./config.yaml)
  --server string    Backend URL (default from config, DOCCHAT_BACKEND_URL, or http://localhost:8080)
  --output string    Output format: text or json (default: text)
  --debug            Enable debug logging

Chat Flags:
  --drop-dir string  Upload PDFs placed into this folder
  --watch            Watch the configured drop folder (upload.drop_directory)

Ask Flags:
  --doc string       PDF ID returned by upload

Examples:
  docchat chat
  docchat chat report.pdf
  docchat chat --drop-dir ~/Desktop/inbox
  docchat upload report.pdf
  docchat ask --doc 3f2a "What are the key points?"
  docchat status --server http://localhost:8000
  docchat config init`)
}
