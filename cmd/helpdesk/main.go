// Package main is the helpdesk knowledge service CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/helpdesk/internal/cli"
	"github.com/hyperjump/helpdesk/internal/config"
	"github.com/hyperjump/helpdesk/internal/embedding"
	"github.com/hyperjump/helpdesk/internal/manifest"
	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/watcher"
	"github.com/hyperjump/helpdesk/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/helpdesk/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	httpClientTimeout = 2 * time.Minute
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence; when neither exists, defaults plus the environment are used.
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
			cfg := config.Default()
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "seed":
		runSeed()
	case "status":
		runStatus()
	case "ready":
		runReady()
	case "generate":
		runGenerate()
	case "version", "--version", "-v":
		fmt.Printf("helpdesk version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, builds the logger and initializes every component.
// It exits the process on failure.
func setup(configPath string, debug bool) (*Components, *zap.Logger) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if resolvedConfigPath == "" {
		resolvedConfigPath = "(defaults)"
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger
}

func closeComponents(c *Components, logger *zap.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("shutdown errors", zap.Error(err))
	}
	_ = logger.Sync()
}

func parseFormatOrExit(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components, logger := setup(*configPath, *debug)
	defer closeComponents(components, logger)

	srv := components.Server
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	manifestPath := fs.String("manifest", "", "document manifest (default: ingest.manifest from config)")
	seedPath := fs.String("seed-manifest", "", "tenant seed manifest (default: ingest.seed_manifest from config)")
	watch := fs.Bool("watch", false, "re-run ingestion whenever the manifest or a listed document changes")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	format := parseFormatOrExit(*outputFormat)

	components, logger := setup(*configPath, *debug)
	defer closeComponents(components, logger)
	cfg := components.Config
	if *manifestPath == "" {
		*manifestPath = cfg.Ingest.Manifest
	}
	if *seedPath == "" {
		*seedPath = cfg.Ingest.SeedManifest
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := ingestOnce(ctx, components, *manifestPath, *seedPath, format)
	if !*watch {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
			closeComponents(components, logger)
			os.Exit(1)
		}
		return
	}
	if err != nil {
		logger.Warn("ingestion failed; waiting for changes", zap.Error(err))
	}

	trigger := make(chan struct{}, 1)
	w := watcher.NewWatcher(func(changed []string) {
		logger.Info("change detected", zap.Strings("files", changed))
		select {
		case trigger <- struct{}{}:
		default:
		}
	}, watcher.WithLogger(logger))
	if err := w.SetFiles(watchList(*manifestPath, entries)...); err != nil {
		logger.Fatal("Failed to watch manifest", zap.Error(err))
	}
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("watching for changes", zap.Int("files", len(w.Files())))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return
		case <-trigger:
			next, err := ingestOnce(ctx, components, *manifestPath, *seedPath, format)
			if err != nil {
				logger.Warn("ingestion failed; waiting for changes", zap.Error(err))
			}
			if next != nil {
				entries = next
			}
			if err := w.SetFiles(watchList(*manifestPath, entries)...); err != nil {
				logger.Warn("watch list update failed", zap.Error(err))
			}
		}
	}
}

// ingestOnce loads the manifest, resolves its tenants and runs one ingestion, writing the
// run summary to stdout. The parsed entries are returned even when the run fails.
func ingestOnce(ctx context.Context, c *Components, manifestPath, seedPath string, format cli.OutputFormat) ([]models.ManifestEntry, error) {
	entries, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	tenants, err := resolveManifestTenants(ctx, c.Storage, entries, seedPath)
	if err != nil {
		return entries, err
	}
	summary, runErr := c.Indexer.IngestManifest(ctx, entries, tenants)
	if summary != nil {
		if err := cli.WriteRunSummary(os.Stdout, summary, format); err != nil {
			return entries, err
		}
	}
	return entries, runErr
}

// watchList returns the manifest path followed by every document it lists.
func watchList(manifestPath string, entries []models.ManifestEntry) []string {
	paths := make([]string, 0, len(entries)+1)
	paths = append(paths, manifestPath)
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front, since flag.Parse stops at the first non-flag argument.
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

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: helpdesk query --tenant <name-or-id> [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  helpdesk query --tenant "Acme Corp" reset my password
  helpdesk query --tenant Globex --limit 3 --output json "billing cycle"
  helpdesk query --server "" --tenant Globex refund policy   # no running server
`)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the index directly)")
	tenant := fs.String("tenant", "", "tenant name or id (required)")
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	req := &models.QueryRequest{Tenant: *tenant, Query: buildQuery(fs.Args()), Limit: *limit}
	if req.Tenant == "" || req.Query == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format := parseFormatOrExit(*outputFormat)

	var response *models.QueryResponse
	if *serverURL != "" {
		var err error
		response, err = queryViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, logger := setup(*configPath, false)
		response = queryDirect(components, logger, req)
		closeComponents(components, logger)
	}
	if err := cli.WriteQueryResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryDirect(c *Components, logger *zap.Logger, req *models.QueryRequest) *models.QueryResponse {
	ctx := context.Background()
	ids, err := c.Storage.ResolveTenants(ctx, []string{req.Tenant})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		closeComponents(c, logger)
		os.Exit(1)
	}
	response, err := c.Engine.Search(ctx, ids[req.Tenant], req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		closeComponents(c, logger)
		os.Exit(1)
	}
	return response
}

func runSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	importPath := fs.String("import", "", "seed manifest to import tenants from (default: demo tenants)")
	seedPath := fs.String("seed-manifest", "", "where to write the name-to-id mapping (default: ingest.seed_manifest from config)")
	_ = fs.Parse(os.Args[2:])

	components, logger := setup(*configPath, false)
	defer closeComponents(components, logger)
	if *seedPath == "" {
		*seedPath = components.Config.Ingest.SeedManifest
	}

	mapping, err := seedTenants(context.Background(), components.Storage, *importPath, *seedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		closeComponents(components, logger)
		os.Exit(1)
	}
	seed := manifest.Seed{Tenants: mapping}
	for _, name := range seed.Names() {
		fmt.Printf("%-20s %s\n", name, mapping[name])
	}
	fmt.Printf("Wrote %d tenant(s) to %s\n", len(mapping), *seedPath)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read storage and index directly)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormatOrExit(*outputFormat)

	var status *models.Status
	if *serverURL != "" {
		status = &models.Status{}
		if err := getJSON(*serverURL+"/api/v1/status", status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, logger := setup(*configPath, false)
		var err error
		status, err = components.Server.Status(context.Background())
		closeComponents(components, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runReady() {
	fs := flag.NewFlagSet("ready", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = probe the vector index and embedding service directly)")
	_ = fs.Parse(os.Args[2:])

	ready := &models.ReadyStatus{}
	if *serverURL != "" {
		resp, err := httpClient().Get(*serverURL + "/knowledge/ready")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ready check failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		// 503 carries the same body as 200.
		if err := json.NewDecoder(resp.Body).Decode(ready); err != nil {
			fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
			os.Exit(1)
		}
	} else {
		components, logger := setup(*configPath, false)
		ctx, cancel := context.WithTimeout(context.Background(), components.Config.Embedding.StatusTimeout*2)
		ready = components.Server.Ready(ctx)
		cancel()
		closeComponents(components, logger)
	}

	fmt.Printf("status: %s\n", ready.Status)
	for _, name := range []string{"vector_index", "embedding"} {
		if v, ok := ready.Checks[name]; ok {
			fmt.Printf("  %-14s %s\n", name+":", v)
		}
	}
	if !ready.Ready() {
		os.Exit(1)
	}
}

func runGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	system := fs.String("system", "", "system prompt")
	temperature := fs.Float64("temperature", embedding.DefaultGenerateOptions().Temperature, "sampling temperature")
	maxTokens := fs.Int("max-tokens", 0, "maximum tokens to generate (0 = model default)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	prompt := buildQuery(fs.Args())
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "Usage: helpdesk generate [flags] <prompt>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	components, logger := setup(*configPath, false)
	defer closeComponents(components, logger)

	opts := embedding.DefaultGenerateOptions()
	opts.System = *system
	opts.Temperature = *temperature
	opts.MaxTokens = *maxTokens
	text, err := components.Embedder.Generate(context.Background(), prompt, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generate failed: %v\n", err)
		closeComponents(components, logger)
		os.Exit(1)
	}
	fmt.Println(text)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

func queryViaHTTP(serverURL string, req *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func getJSON(url string, out interface{}) error {
	resp, err := httpClient().Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkResponse turns a non-200 response into an error carrying the server's message.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func printUsage() {
	fmt.Println(`helpdesk - Multi-tenant helpdesk knowledge ingestion and retrieval

Usage:
  helpdesk server [flags]                 Start the HTTP server
  helpdesk ingest [flags]                 Ingest the documents listed in a manifest
  helpdesk query --tenant T [flags] <q>   Retrieve the best chunks for a tenant
  helpdesk seed [flags]                   Create tenants and write the seed manifest
  helpdesk status [flags]                 Show index, tenant and run statistics
  helpdesk ready [flags]                  Probe the vector index and embedding service
  helpdesk generate [flags] <prompt>      Send a prompt to the generation model
  helpdesk version                        Show version
  helpdesk help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/helpdesk/config.yaml,
                     or ./config.yaml when present; built-in defaults when neither exists)

Ingest Flags:
  --manifest string        Document manifest (default: ingest.manifest)
  --seed-manifest string   Tenant name-to-id mapping (default: ingest.seed_manifest)
  --watch                  Re-run ingestion when the manifest or its documents change
  --output string          text, compact, or json (default: text)

Query Flags:
  --tenant string    Tenant name or id (required)
  --limit int        Number of results (default: search.default_limit)
  --server string    Server URL (default: http://localhost:8080); "" queries the index directly
  --output string    text, compact, or json (default: text)

Seed Flags:
  --import string          Seed manifest to import tenants from (default: demo tenants)
  --seed-manifest string   Where to write the mapping (default: ingest.seed_manifest)

Status Flags:
  --server string    Server URL (default: http://localhost:8080); "" reads storage directly
  --output string    text, compact, or json (default: text)

Ready Flags:
  --server string    Server URL to probe (default: probe dependencies directly)

Generate Flags:
  --system string        System prompt
  --temperature float    Sampling temperature (default: 0.7)
  --max-tokens int       Maximum tokens to generate

Environment:
  HELPDESK_OLLAMA_URL, HELPDESK_QDRANT_URL, HELPDESK_QDRANT_API_KEY, HELPDESK_DEBUG
  (also read from ./.env)

Examples:
  helpdesk seed
  helpdesk ingest --manifest scripts/demo_docs.json
  helpdesk ingest --watch
  helpdesk server
  helpdesk query --tenant "Acme Corp" how do I reset my password
  helpdesk status --output json`)
}
