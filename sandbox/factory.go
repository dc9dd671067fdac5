package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/dexbox/config"
)

// NewExecutor creates an appropriate executor based on the configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, error) {
	executorConfig := Config{
		StorePath:    cfg.Store.Path,
		Timeout:      cfg.GetTimeout(),
		GracePeriod:  cfg.GetGracePeriod(),
		MaxStdoutLen: cfg.Sandbox.MaxStdoutLen,
	}

	switch cfg.Sandbox.Backend {
	case "process":
		return NewProcessExecutor(logger, &executorConfig), nil
	case "goja":
		return NewGojaExecutor(logger, &executorConfig), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
