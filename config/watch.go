package config

import (
	"fmt"
	"path/filepath"

	"github.com/adhocore/gronx"
)

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	// Inbox is the directory scanned for batch files.
	Inbox string `json:"inbox"`
	// Cron is a five or six field cron expression, or a tag such as @hourly.
	Cron      string `json:"cron"`
	Processed string `json:"processed"`
	Failed    string `json:"failed"`
}

func (c *WatchConfig) SetDefaults() {
	if c.Inbox == "" {
		c.Inbox = "inbox"
	}
	if c.Cron == "" {
		c.Cron = "*/5 * * * *"
	}
	if c.Processed == "" {
		c.Processed = filepath.Join(c.Inbox, "processed")
	}
	if c.Failed == "" {
		c.Failed = filepath.Join(c.Inbox, "failed")
	}
}

func (c WatchConfig) Validate() error {
	if !gronx.IsValid(c.Cron) {
		return fmt.Errorf("invalid cron expression %q", c.Cron)
	}
	if c.Inbox == "" {
		return fmt.Errorf("inbox is required")
	}
	if c.Processed == c.Inbox || c.Failed == c.Inbox {
		return fmt.Errorf("processed and failed must differ from inbox")
	}
	return nil
}
