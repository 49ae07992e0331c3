// Command valet runs the assistant core as a line-oriented CLI: each stdin
// line is one inbound message, each reply is printed to stdout. Real message
// transports sit in front of the same assistant.Handle call.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/valetiq/valet/internal/adapters"
	"github.com/valetiq/valet/internal/assistant"
	"github.com/valetiq/valet/internal/contacts"
	"github.com/valetiq/valet/internal/engine"
	"github.com/valetiq/valet/internal/entities"
	"github.com/valetiq/valet/internal/intervene"
	"github.com/valetiq/valet/internal/kv"
	"github.com/valetiq/valet/internal/logging"
	"github.com/valetiq/valet/internal/planner"
	"github.com/valetiq/valet/internal/secrets"
	"github.com/valetiq/valet/internal/session"
	"github.com/valetiq/valet/internal/store"
	"github.com/valetiq/valet/internal/validation"
	"github.com/valetiq/valet/pkg/mcp"
)

func main() {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("valet exited", "error", err.Error())
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(valetDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dbPath := cfg.DBPath
	if !strings.HasPrefix(dbPath, "file:") {
		dbPath = "file:" + dbPath
	}
	durable, err := store.NewLibSQLStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer durable.Close()
	if err := durable.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	var kvStore kv.Store
	if cfg.RedisAddr != "" {
		kvStore = kv.NewRedisStore(kv.RedisConfig{Addrs: []string{cfg.RedisAddr}, Namespace: "valet"})
	} else {
		kvStore = kv.NewMemoryStore()
		logger.Info("no redis configured, using in-process kv store")
	}
	defer kvStore.Close()

	var vault secrets.Vault
	if cfg.VaultPassphrase != "" {
		salt := cfg.VaultSalt
		if salt == "" {
			salt = "valet.credentials.v1"
		}
		vault, err = secrets.NewAESVault(durable, secrets.VaultConfig{
			Passphrase: cfg.VaultPassphrase,
			Salt:       []byte(salt),
		})
		if err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
	}

	headers, err := secrets.ResolveHeaders(ctx, vault, cfg.BridgeHeaders)
	if err != nil {
		return err
	}

	registry := adapters.NewRegistry()
	for stepType, baseURL := range cfg.Bridges {
		bridge, err := adapters.NewHTTPBridge(adapters.HTTPBridgeConfig{
			StepType: stepType,
			BaseURL:  baseURL,
			Headers:  headers,
		})
		if err != nil {
			return fmt.Errorf("bridge %s: %w", stepType, err)
		}
		if err := registry.Register(bridge); err != nil {
			return fmt.Errorf("register bridge %s: %w", stepType, err)
		}
	}
	logger.Info("adapters registered", "types", registry.Types())

	sessions := session.NewManager(kvStore)
	interventions := intervene.NewManager(kvStore, sessions, logger)

	sweeper := intervene.NewSweeper(interventions, cfg.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	var resolver *contacts.Resolver
	if cfg.ContactsURL != "" {
		dir, err := contacts.NewHTTPDirectory(cfg.ContactsURL, cfg.BridgeHeaders)
		if err != nil {
			return fmt.Errorf("contact directory: %w", err)
		}
		var suggester contacts.VariantSuggester
		if cfg.AnthropicKey != "" {
			suggester = contacts.NewAnthropicSuggester(contacts.AnthropicSuggesterOptions{APIKey: cfg.AnthropicKey})
		}
		resolver = contacts.NewResolver(dir, suggester, logger)
	}

	oracle := planner.NewAnthropicOracle(planner.AnthropicOracleOptions{APIKey: cfg.AnthropicKey})
	plans, err := planner.New(oracle, logger)
	if err != nil {
		return fmt.Errorf("planner: %w", err)
	}

	executor := engine.NewExecutor(engine.ExecutorConfig{
		Adapters:  registry,
		Store:     durable,
		Intervene: interventions,
		Logger:    logger,
	})

	a := assistant.New(assistant.Config{
		Planner:   plans,
		Contacts:  resolver,
		Entities:  entities.NewCache(kvStore),
		Sessions:  sessions,
		Intervene: interventions,
		Executor:  executor,
		Validator: validation.NewPlanValidator(registry),
		Store:     durable,
		Logger:    logger,
	})

	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		srv := mcp.NewValetServer(mcp.ValetServerDeps{
			Assistant: a,
			Store:     durable,
			Vault:     vault,
			Logger:    logger,
		})
		return srv.Serve(ctx)
	}

	return repl(ctx, a)
}

// repl reads one message per line and prints the reply. Lines of the form
// "identity|message" address a specific identity; bare lines use "cli".
func repl(ctx context.Context, a *assistant.Assistant) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		in := assistant.Inbound{Identity: "cli", Channel: "cli", Message: line}
		if id, msg, ok := splitIdentity(line); ok {
			in.Identity, in.Message = id, msg
		}

		reply, err := a.Handle(ctx, in)
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
			continue
		}
		printReply(reply)
	}
	return scanner.Err()
}

func splitIdentity(line string) (string, string, bool) {
	for i, r := range line {
		if r == '|' && i > 0 && i < len(line)-1 {
			return line[:i], line[i+1:], true
		}
	}
	return "", "", false
}

func printReply(r *assistant.Reply) {
	switch {
	case r.Rich != nil:
		raw, err := json.MarshalIndent(r.Rich, "", "  ")
		if err == nil {
			fmt.Fprintf(os.Stdout, "[%s] %s\n%s\n", r.Kind, r.Text, raw)
			return
		}
		fmt.Fprintf(os.Stdout, "[%s] %s\n", r.Kind, r.Text)
	case r.AuthURL != "":
		fmt.Fprintf(os.Stdout, "[%s] %s\nauthorize here: %s\n", r.Kind, r.Text, r.AuthURL)
	default:
		fmt.Fprintf(os.Stdout, "[%s] %s\n", r.Kind, r.Text)
	}
}
