package config_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/scoutsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.BatchSize, convey.ShouldEqual, 50)
			convey.So(cfg.MaxRetries, convey.ShouldEqual, 6)
			convey.So(cfg.BaseBackoff(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.MaxBackoff(), convey.ShouldEqual, time.Duration(0))
			convey.So(cfg.SyncInterval(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.TriggerQueueSize, convey.ShouldEqual, 8)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.RemoteURL, convey.ShouldBeEmpty)
			convey.So(cfg.LegacyCountFields, convey.ShouldResemble, []string{"auto.leave", "endgame.park"})
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then paths should live under the data dir", func() {
			convey.So(cfg.DBPath(), convey.ShouldEqual, filepath.Join("data", "scoutsync.db"))
			convey.So(cfg.SignalDir(), convey.ShouldEqual, filepath.Join("data", "signals"))
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config with an invalid field", t, func() {
		cases := []struct {
			field  string
			mutate func(c *config.Config)
		}{
			{"addr", func(c *config.Config) { c.Addr = "" }},
			{"data_dir", func(c *config.Config) { c.DataDir = "" }},
			{"batch_size", func(c *config.Config) { c.BatchSize = 0 }},
			{"max_retries", func(c *config.Config) { c.MaxRetries = -1 }},
			{"backoff", func(c *config.Config) { c.BaseBackoffMS = -5 }},
			{"sync_interval_sec", func(c *config.Config) { c.SyncIntervalSec = 0 }},
			{"probe_interval_sec", func(c *config.Config) { c.ProbeIntervalSec = 0 }},
			{"trigger_queue_size", func(c *config.Config) { c.TriggerQueueSize = 0 }},
			{"metrics_refresh_sec", func(c *config.Config) { c.MetricsRefreshSec = 0 }},
		}

		for _, tc := range cases {
			convey.Convey("Then "+tc.field+" should be rejected with ErrInvalidConfig", func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)

				err := cfg.Validate()
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(err.Error(), convey.ShouldContainSubstring, tc.field)
			})
		}
	})
}
