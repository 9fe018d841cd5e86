package handlers

import (
	"context"
	"errors"
	"os"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/ui/tui"
)

// Modules prints the module registry. Without a configuration file the
// built-in modules under the default modules directory are listed.
func Modules(_ context.Context, configPath string) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		if configPath != DefaultConfigFile || !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = &config.Config{ModulesDir: config.DefaultModulesDir}
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	printf("%s", tui.RenderModules(registry.List()))
	return nil
}
