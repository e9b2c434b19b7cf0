package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"meteo/apis/openweathermap"
	"meteo/cli"
	"meteo/config"
	"meteo/logger"
	"meteo/manager"
)

//go:embed config.yaml
var configRaw []byte

func main() {
	ctx := context.Background()

	cmd, err := cli.New(setup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "new cli: %s\n", err)
		os.Exit(1)
	}

	if err = cmd.ExecuteContext(ctx); err != nil {
		// Query failures were already printed by the command.
		var failure *manager.Failure
		if !errors.As(err, &failure) {
			fmt.Fprintf(os.Stderr, "meteo: %s\n", err)
		}
		os.Exit(1)
	}
}

func setup(configPath string) (*cli.Runtime, error) {
	cfg, err := config.Load(configRaw, configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	owm, err := openweathermap.New(openweathermap.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Units:   cfg.Provider.Units,
		Lang:    cfg.Provider.Lang,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	owm.SetLogger(log)

	service := manager.New(owm)
	service.SetLogger(log)

	log.Debug("configuration loaded",
		logger.String("config_path", configPath),
		logger.String("base_url", cfg.Provider.BaseURL),
		logger.String("lang", cfg.Provider.Lang))

	return &cli.Runtime{
		Config:  cfg,
		Logger:  log,
		Service: service,
	}, nil
}
