package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/BearBump/DispatchBox/config"
	"github.com/BearBump/DispatchBox/internal/services/autoplay"
	"github.com/stretchr/testify/require"
)

func TestAutoplayConfig(t *testing.T) {
	require.Equal(t, autoplay.DefaultConfig(), autoplayConfig(config.AutoplayConfig{}))

	off := false
	c := autoplayConfig(config.AutoplayConfig{Drivers: &off, OrderAgents: 1})
	require.False(t, c.Drivers)
	require.True(t, c.Orders)
	require.Equal(t, 1, c.OrderAgents)
}

func TestDefaultAutoplayFactories_TargetURL(t *testing.T) {
	f := defaultAutoplayFactories()
	d, release, err := f.newDoer(context.Background(), &config.Config{Autoplay: config.AutoplayConfig{TargetURL: "http://localhost:8080"}})
	require.NoError(t, err)
	defer release()
	_, ok := d.(*autoplay.HTTPDoer)
	require.True(t, ok)

	ws, ok := f.newPositions(&config.Config{}).(*autoplay.RouteWalker)
	require.True(t, ok)
	require.Equal(t, 50*time.Millisecond, ws.Delay)
}

func TestRunAutoplay_InProcess(t *testing.T) {
	cfg := &config.Config{
		Dispatch: config.DispatchConfig{
			DSN:        fmt.Sprintf("file:dispatch_autoplay_%d?mode=memory&cache=shared", time.Now().UnixNano()),
			Warehouses: 2,
			Pickpoints: 3,
			Seed:       3,
		},
		Autoplay: config.AutoplayConfig{
			HTTPAddr:      "127.0.0.1:0",
			OrderAgents:   2,
			SpeedKmPerMin: 100000,
			DelayMs:       1,
			StatsSchedule: "@every 1s",
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunAutoplay(ctx, cfg, defaultAutoplayFactories(), runOpts{
			onListen: func(addr string) { addrCh <- addr },
			tune: func(c *autoplay.Config) {
				c.DriverWait = 5 * time.Millisecond
				c.SettleWait = 0
				c.DriveWait = 0
				c.OrderWait = 5 * time.Millisecond
				c.PollInterval = 5 * time.Millisecond
				c.AutoplayFreshness = 0
				c.ManualFreshness = 0
			},
		})
	}()
	base := "http://" + <-addrCh

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st autoplay.Stats
		if json.NewDecoder(resp.Body).Decode(&st) != nil {
			return false
		}
		return st.OrdersCompleted >= 1
	}, 20*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
