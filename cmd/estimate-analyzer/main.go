package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/estimate-analyzer/internal/review"
	"github.com/zombor/estimate-analyzer/internal/scanning"
	"github.com/zombor/estimate-analyzer/internal/supervisor"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	os.Exit(run())
}

// run wires the application and returns the process exit code, so deferred
// cleanup runs before main exits.
func run() int {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			return 0
		}
	}

	fs := ff.NewFlagSet("estimate-analyzer")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "estimate-analyzer.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./estimates", "Storage directory path")
		extractorType  = fs.StringLong("extractor", "gemini", "Extractor type: 'gemini', 'ollama' or 'anthropic'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		anthropicKey   = fs.StringLong("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
		anthropicModel = fs.StringLong("anthropic-model", "", "Anthropic model name (default claude-sonnet-4-5)")
		anthropicURL   = fs.StringLong("anthropic-url", "", "Anthropic API base URL override")
		maxRuntime     = fs.DurationLong("max-runtime", supervisor.DefaultMaxRuntime, "Runtime ceiling for one analysis")
		logCapacity    = fs.IntLong("log-capacity", supervisor.DefaultMaxEntries, "Operations kept in the supervisor log")
		retryAttempts  = fs.IntLong("retry-attempts", 2, "Attempts per document when extraction fails")
		rateLimit      = fs.Float64Long("rate-limit", 0, "Extraction calls per minute (0 for unlimited)")
		concurrency    = fs.IntLong("concurrency", 2, "Documents analyzed in parallel in batch mode")
		documentType   = fs.StringLong("document-type", "contractor", "Batch mode document source: 'contractor' or 'carrier'")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ESTIMATE_ANALYZER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		return 0
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := review.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	defer db.Close()

	// Initialize extractor based on type
	var extractor scanning.Extractor
	switch *extractorType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			return 1
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			return 1
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			return 1
		}
	case "anthropic":
		apiKey := *anthropicKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Anthropic API key is required. Set --anthropic-key flag or ANTHROPIC_API_KEY environment variable")
			return 1
		}
		slog.Info("Initializing Anthropic extractor...", "model", *anthropicModel)
		extractor, err = scanning.NewAnthropic(apiKey, *anthropicModel, *anthropicURL)
		if err != nil {
			slog.Error("Failed to initialize Anthropic", "error", err)
			return 1
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini, ollama or anthropic")
		return 1
	}
	extractor = scanning.NewRateLimited(extractor, *rateLimit)
	defer extractor.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := review.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		return 1
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sup := supervisor.New(supervisor.Config{
		MaxEntries: *logCapacity,
		Metrics:    supervisor.NewMetrics(registry),
	})

	reviewService := review.NewService(db, extractor, store, sup, review.Config{
		MaxRuntime:    *maxRuntime,
		RetryAttempts: *retryAttempts,
	})

	// Positional arguments switch to batch mode
	if files := fs.GetArgs(); len(files) > 0 {
		source, err := scanning.ParseDocumentType(*documentType)
		if err != nil {
			slog.Error("Invalid document type", "type", *documentType, "error", err)
			return 1
		}
		return runBatch(reviewService, files, source, *concurrency)
	}

	server := review.NewServer(reviewService, registry)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	// Wait for interrupt signal or a server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
		return 1
	}

	slog.Info("Shutting down...")
	return 0
}

// runBatch analyzes files and prints one JSON report to stdout. It returns
// the process exit code.
func runBatch(service *review.Service, files []string, source scanning.DocumentType, concurrency int) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items := make([]review.BatchItem, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read file", "path", path, "error", err)
			return 1
		}
		items = append(items, review.BatchItem{
			Filename:    filepath.Base(path),
			Data:        data,
			ContentType: contentTypeFor(path, data),
			Source:      source,
		})
	}

	slog.Info("Starting batch", "files", len(items), "concurrency", concurrency)
	result, err := service.AnalyzeBatch(ctx, items, review.BatchOptions{
		Concurrency: concurrency,
		ClearLog:    true,
	})
	if err != nil {
		slog.Error("Batch failed", "error", err)
		return 1
	}

	type fileReport struct {
		File   string         `json:"file"`
		Review *review.Review `json:"review,omitempty"`
		Error  string         `json:"error,omitempty"`
	}
	report := struct {
		Files     []fileReport       `json:"files"`
		Succeeded int                `json:"succeeded"`
		Failed    int                `json:"failed"`
		ElapsedMs int64              `json:"elapsedMs"`
		Summary   supervisor.Summary `json:"operations"`
	}{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		ElapsedMs: result.Elapsed.Milliseconds(),
		Summary:   result.Summary,
	}
	for _, o := range result.Outcomes {
		fr := fileReport{File: o.Filename, Review: o.Review}
		if o.Err != nil {
			fr.Error = o.Err.Error()
		}
		report.Files = append(report.Files, fr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("Failed to write report", "error", err)
		return 1
	}

	slog.Info("Batch complete",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func contentTypeFor(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
