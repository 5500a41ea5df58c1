package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/app"
	"github.com/ternarybob/nuntius/internal/common"
	"github.com/ternarybob/nuntius/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths // Multiple -config flags supported
	ingestFile   = flag.String("ingest", "", "Ingest raw articles from a JSON file")
	queryText    = flag.String("query", "", "Run a free-text query against the corpus")
	queryLimit   = flag.Int("limit", 0, "Maximum query results (0 uses the configured default)")
	showStats    = flag.Bool("stats", false, "Print corpus and deduplication statistics")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Nuntius version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("nuntius.toml"); err == nil {
			configFiles = append(configFiles, "nuntius.toml")
		}
	}

	// Startup sequence: load config, initialize logger, print banner, wire app.
	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("embedding_mode", config.Embedding.Mode).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	switch {
	case *ingestFile != "":
		if err := runIngest(application, *ingestFile); err != nil {
			logger.Fatal().Err(err).Msg("Ingestion failed")
		}
	case *queryText != "":
		if err := runQuery(application, *queryText, *queryLimit); err != nil {
			logger.Fatal().Err(err).Msg("Query failed")
		}
	case *showStats:
		if err := runStats(application); err != nil {
			logger.Fatal().Err(err).Msg("Stats failed")
		}
	default:
		flag.Usage()
	}
}

// runIngest reads a JSON array of raw articles and runs them through the
// pipeline worker pool.
func runIngest(application *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read ingest file %s: %w", path, err)
	}

	var raws []*models.RawArticle
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("failed to parse ingest file %s: %w", path, err)
	}

	results := application.Pipeline.IngestBatch(context.Background(), raws)

	var stored, duplicates, failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			logger.Warn().Err(res.Err).Int("index", res.Index).Msg("Article ingestion failed")
		case res.Outcome.IsDuplicate:
			duplicates++
		default:
			stored++
		}
	}

	logger.Info().
		Int("total", len(results)).
		Int("stored", stored).
		Int("duplicates", duplicates).
		Int("failed", failed).
		Msg("Batch ingestion complete")
	return nil
}

// runQuery executes one query and prints the response as indented JSON.
func runQuery(application *app.App, text string, limit int) error {
	response, err := application.QueryEngine.Search(context.Background(), text, limit)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode query response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// runStats prints corpus and cluster statistics.
func runStats(application *app.App) error {
	articleStats, err := application.StorageManager.ArticleStorage().GetStats()
	if err != nil {
		return fmt.Errorf("failed to read article stats: %w", err)
	}
	clusterStats, err := application.StorageManager.ClusterStorage().GetStats()
	if err != nil {
		return fmt.Errorf("failed to read cluster stats: %w", err)
	}

	out, err := json.MarshalIndent(map[string]any{
		"articles": articleStats,
		"clusters": clusterStats,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
