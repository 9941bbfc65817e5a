package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/adapter"
	"github.com/hiraku-dev/kioku/pkg/ranking"
	"github.com/hiraku-dev/kioku/pkg/repository"
	"github.com/hiraku-dev/kioku/pkg/usecase/memory"
	"github.com/hiraku-dev/kioku/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	// Repository
	dbPath string

	// Ranking
	tuningPath string

	// Embedding
	embedder       string
	geminiProject  string
	geminiLocation string
	embeddingModel string
	dimension      int64

	// Logging
	logLevel string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Aliases:     []string{"d"},
			Usage:       "Path to the SQLite database file",
			Value:       defaultDBPath(),
			Sources:     cli.EnvVars("KIOKU_DB"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "tuning",
			Usage:       "Path to a YAML file overriding ranking weights",
			Sources:     cli.EnvVars("KIOKU_TUNING"),
			Destination: &cfg.tuningPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KIOKU_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// embedderFlags returns flags for embedding provider configuration
func embedderFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding provider (gemini or local)",
			Value:       "local",
			Sources:     cli.EnvVars("KIOKU_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini embeddings",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension (must match the database)",
			Sources:     cli.EnvVars("KIOKU_DIMENSION"),
			Destination: &cfg.dimension,
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kioku.db"
	}
	return home + "/.kioku/memories.db"
}

// setupLogging configures the process-wide logger from the flags. The
// returned context carries it.
func (cfg *config) setupLogging(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates a new repository instance
func (cfg *config) newRepository() (repository.Repository, error) {
	if cfg.dbPath == "" {
		return nil, goerr.New("db path is required")
	}

	repo, err := repository.NewSQLite(cfg.dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open repository")
	}
	return repo, nil
}

// newEmbedder creates the configured embedding provider
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	switch cfg.embedder {
	case "local":
		var opts []adapter.LocalOption
		if cfg.dimension > 0 {
			opts = append(opts, adapter.WithLocalDimension(int(cfg.dimension)))
		}
		return adapter.NewLocal(opts...), nil

	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required for the gemini embedder")
		}
		var opts []adapter.GeminiOption
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
		}
		if cfg.dimension > 0 {
			opts = append(opts, adapter.WithDimension(int(cfg.dimension)))
		}
		return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)

	default:
		return nil, goerr.New("unsupported embedder",
			goerr.V("embedder", cfg.embedder),
			goerr.V("supported", []string{"gemini", "local"}))
	}
}

// newUseCase wires the repository, embedder and ranking engine
func (cfg *config) newUseCase(ctx context.Context) (*memory.UseCase, repository.Repository, error) {
	repo, err := cfg.newRepository()
	if err != nil {
		return nil, nil, err
	}

	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}

	var engineOpts []ranking.Option
	if cfg.tuningPath != "" {
		tuning, err := ranking.LoadTuning(cfg.tuningPath)
		if err != nil {
			repo.Close()
			return nil, nil, err
		}
		profiles, decayRate := tuning.Apply()
		engineOpts = append(engineOpts,
			ranking.WithProfiles(profiles),
			ranking.WithDecayRate(decayRate),
		)
	}

	uc := memory.New(repo, embedder,
		memory.WithEngine(ranking.New(repo, engineOpts...)),
	)
	return uc, repo, nil
}
