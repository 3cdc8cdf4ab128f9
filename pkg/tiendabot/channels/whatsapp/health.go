package whatsapp

import (
	"context"
	"time"
)

// HealthMonitorConfig configures the silent-connection watchdog.
type HealthMonitorConfig struct {
	// Enabled turns on the watchdog.
	Enabled bool `yaml:"enabled"`

	// CheckInterval is how often the connection is checked. Default: 30s.
	CheckInterval time.Duration `yaml:"check_interval"`

	// MaxSilentDuration is how long the connection may go without activity
	// before the client is asked whether it is still connected. Default: 5m.
	MaxSilentDuration time.Duration `yaml:"max_silent_duration"`
}

// DefaultHealthMonitorConfig returns the watchdog defaults.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Enabled:           true,
		CheckInterval:     30 * time.Second,
		MaxSilentDuration: 5 * time.Minute,
	}
}

// StartHealthMonitor runs the watchdog until ctx is cancelled. At most one
// watchdog runs at a time; it reports whether a new one was started.
func (w *WhatsApp) StartHealthMonitor(ctx context.Context, cfg HealthMonitorConfig) bool {
	if !cfg.Enabled {
		return false
	}
	if !w.monitorRunning.CompareAndSwap(false, true) {
		return false
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.MaxSilentDuration <= 0 {
		cfg.MaxSilentDuration = 5 * time.Minute
	}

	go func() {
		defer w.monitorRunning.Store(false)
		ticker := time.NewTicker(cfg.CheckInterval)
		defer ticker.Stop()

		w.logger.Info("whatsapp: health monitor started",
			"check_interval", cfg.CheckInterval,
			"max_silent", cfg.MaxSilentDuration)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.checkHealth(cfg)
			}
		}
	}()
	return true
}

// checkHealth reconnects when the socket is gone but the state says connected.
// It reports whether a reconnect was attempted.
func (w *WhatsApp) checkHealth(cfg HealthMonitorConfig) bool {
	if w.getState() != StateConnected || w.client == nil {
		return false
	}
	silent := time.Since(w.getLastMsgTime())
	if silent <= cfg.MaxSilentDuration {
		return false
	}
	if w.client.IsConnected() {
		w.logger.Debug("whatsapp: silent connection, client still reports connected",
			"silent", silent)
		return false
	}

	w.logger.Warn("whatsapp: client reports disconnected, reconnecting",
		"silent", silent)
	w.setState(StateReconnecting)
	w.connected.Store(false)
	go func() {
		if err := w.client.Connect(); err != nil {
			w.logger.Error("whatsapp: reconnect failed", "error", err)
			w.setState(StateDisconnected)
		}
	}()
	return true
}

func (w *WhatsApp) getLastMsgTime() time.Time {
	if v := w.lastMsg.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

// UpdateLastMsgTime records connection activity.
func (w *WhatsApp) UpdateLastMsgTime() {
	w.lastMsg.Store(time.Now())
}
