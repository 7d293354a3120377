// Package app wires the pieces every CLI command needs: the parsed config
// file, the rigs registry and the per-rig store cache.
package app

import (
	"fmt"
	"os"

	"offsider/internal/config"
	"offsider/internal/db"
	"offsider/internal/engine"
	"offsider/internal/migrate"
)

type App struct {
	ConfigPath string
	Config     *config.Config
	Rigs       []config.Rig
	Stores     *db.Stores
}

// Load reads the config and rigs files and prepares the store cache. A
// missing rigs file is not an error; the registry then holds the single
// built-in default rig.
func Load(configPath string) (*App, error) {
	if configPath == "" {
		configPath = config.DefaultPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	rigs, err := config.LoadRigs(cfg.Auth.RigsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load rigs: %w", err)
		}
		rigs = []config.Rig{{ID: "default", Title: "Default Rig"}}
	}
	return &App{
		ConfigPath: configPath,
		Config:     cfg,
		Rigs:       rigs,
		Stores:     db.NewStores(cfg.Data.Dir, migrate.Migrate),
	}, nil
}

func (a *App) Close() error {
	return a.Stores.Close()
}

// ResolveRig picks the rig a command operates on: the override when given,
// otherwise the registry's single entry, otherwise "default" when present.
func (a *App) ResolveRig(override string) (config.Rig, error) {
	if override != "" {
		rig, ok := config.FindRig(a.Rigs, override)
		if !ok {
			return config.Rig{}, fmt.Errorf("unknown rig %q; check %s", override, a.Config.Auth.RigsFile)
		}
		return rig, nil
	}
	if len(a.Rigs) == 1 {
		return a.Rigs[0], nil
	}
	if rig, ok := config.FindRig(a.Rigs, "default"); ok {
		return rig, nil
	}
	return config.Rig{}, fmt.Errorf("rig not specified; use --rig")
}

// Engine opens the rig's store and binds an engine to it.
func (a *App) Engine(rigID string) (engine.Engine, error) {
	conn, err := a.Stores.Get(rigID)
	if err != nil {
		return engine.Engine{}, err
	}
	return engine.New(conn), nil
}
