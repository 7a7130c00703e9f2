// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesqlite

import (
	"context"
	"errors"
	"time"
)

// Start launches the auto-sync loop: every Interval, run a full cycle when
// the device is online and a server is configured. Ticks are independent; a
// tick that lands while a previous cycle is still running is skipped by the
// in-flight guard rather than overlapping it. The loop exits when ctx is
// cancelled.
func (c *Client) Start(ctx context.Context) {
	go c.autoSyncLoop(ctx)
}

func (c *Client) autoSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.BaseURL == "" || (c.Online != nil && !c.Online()) {
			continue
		}

		switch err := c.SyncAll(ctx); {
		case err == nil:
		case errors.Is(err, ErrSyncBusy):
			c.logger.Debug("Sync tick skipped, cycle in flight")
		case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrOffline):
			// Left to the next tick
		default:
			c.logger.Warn("Auto-sync cycle failed", "error", err)
		}
	}
}
