package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"approline/internal/ai"
	"approline/internal/config"
)

// ResolvePlatformConfig loads approline.yml from the workspace,
// seeding the default file on first use so a fresh workspace works
// without manual setup.
func ResolvePlatformConfig(workspace, platformID string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	if platformID == "" {
		platformID = "uc-ppp"
	}
	path := config.Path(workspace)
	if err := os.WriteFile(path, []byte(config.GenerateDefault(platformID)), 0o644); err != nil {
		return nil, fmt.Errorf("seed config %s: %w", path, err)
	}
	return config.Default(platformID), nil
}

// NewLogger builds the process logger. Verbose switches to the
// development encoder with debug level.
func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// BuildAnalyst wires the AI assistant from config plus the
// APPROLINE_AI_API_KEY environment variable. A missing key yields an
// unconfigured analyst; callers degrade gracefully.
func BuildAnalyst(cfg *config.Config, logger *zap.Logger) *ai.Analyst {
	apiKey := os.Getenv("APPROLINE_AI_API_KEY")
	model := ""
	baseURL := ""
	var temp float32
	if cfg != nil {
		model = cfg.AI.Model
		baseURL = cfg.AI.BaseURL
		temp = cfg.AI.Temperature
	}
	return ai.NewAnalyst(apiKey, baseURL, model, temp, logger)
}
