package config

import (
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/kilianp07/scanplan/infra/store"
)

// StoreConfig selects where the canonical schedule lives.
type StoreConfig struct {
	// Backend is "csv" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "csv"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "schedule.db"
		default:
			c.Path = "schedule.csv"
		}
	}
}

func (c StoreConfig) Validate() error {
	if c.Backend != "csv" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// Open opens the configured store. CSV files are accessed through fsys.
func (c StoreConfig) Open(fsys afero.Fs, loc *time.Location) (store.Backend, error) {
	return store.Open(c.Backend, c.Path, fsys, loc)
}
