package es

import (
	"context"
	"net/http"
	"time"
)

// SpeedController toggles an index between fast-ingest and durable modes
// by patching its refresh interval and translog durability. Both
// operations PUT absolute values, so they are idempotent.
type SpeedController struct {
	client          *Client
	refreshInterval string
}

// NewSpeedController creates a controller. refreshInterval is the
// durable-mode refresh setting restored by SetDurable (e.g. "30s").
func NewSpeedController(c *Client, refreshInterval string) *SpeedController {
	return &SpeedController{client: c, refreshInterval: refreshInterval}
}

// SetFast disables refresh and switches the translog to async fsync,
// trading durability for write throughput while the index is hot.
func (sc *SpeedController) SetFast(ctx context.Context, index string) error {
	return sc.patch(ctx, index, "-1", "async")
}

// SetDurable restores default refresh and synchronous translog behavior.
func (sc *SpeedController) SetDurable(ctx context.Context, index string) error {
	return sc.patch(ctx, index, sc.refreshInterval, "request")
}

func (sc *SpeedController) patch(ctx context.Context, index, refresh, durability string) error {
	body := map[string]any{
		"index": map[string]any{
			"refresh_interval":    refresh,
			"translog.durability": durability,
		},
	}
	return sc.client.Do(ctx, http.MethodPut, "/"+index+"/_settings", body, nil)
}

type settingsEntry struct {
	Settings struct {
		Index struct {
			Lifecycle struct {
				Name          string `json:"name"`
				RolloverAlias string `json:"rollover_alias"`
			} `json:"lifecycle"`
		} `json:"index"`
	} `json:"settings"`
}

// EnsureManaged verifies the index carries lifecycle settings and attaches
// them when missing. Indices created through the rollover template inherit
// them; a miss means the environment drifted, so it is repaired once and a
// short pause lets the lifecycle coordinator pick the index up.
func (c *Client) EnsureManaged(ctx context.Context, index, policy, rolloverAlias string) error {
	var resp map[string]settingsEntry
	if err := c.Do(ctx, http.MethodGet, "/"+index+"/_settings?include_defaults=true", nil, &resp); err != nil {
		return err
	}

	entry, ok := resp[index]
	if !ok {
		for _, e := range resp {
			entry = e
			break
		}
	}

	lc := entry.Settings.Index.Lifecycle
	if lc.Name != "" && lc.RolloverAlias != "" {
		return nil
	}

	c.log.Warn().Str("index", index).Msg("index missing lifecycle settings, attaching")
	body := map[string]string{
		"index.lifecycle.name":           policy,
		"index.lifecycle.rollover_alias": rolloverAlias,
	}
	if err := c.Do(ctx, http.MethodPut, "/"+index+"/_settings", body, nil); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return nil
}
