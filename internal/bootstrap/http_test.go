package bootstrap

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kmn/visitor-kiosk/config"
)

func TestRouterServices_MapsConfig(t *testing.T) {
	appCfg := &config.AppConfig{
		Session: config.SessionConfig{
			ContextCookie:     "ctx",
			ContextMaxAge:     time.Hour,
			ConsolePathPrefix: "/console",
		},
		HTTP: config.HTTPConfig{CookieDomain: "kiosk.example", CSRFEnabled: true, SSEHeartbeatSeconds: 20},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	got := routerServices(&HTTPServerConfig{}, appCfg, logger)

	assert.Equal(t, "ctx", got.Context.CookieName)
	assert.Equal(t, "kiosk.example", got.Context.CookieDomain)
	assert.Equal(t, time.Hour, got.Context.MaxAge)
	assert.Equal(t, "/console", got.Context.ConsolePathPrefix)
	assert.True(t, got.CSRFEnabled)
	assert.Equal(t, 20*time.Second, got.SSEHeartbeat)
	assert.Nil(t, got.AutoExit)
	assert.Nil(t, got.Sweeps)
	assert.Nil(t, got.Audit)
	assert.Nil(t, got.Health)
}

func TestStartHTTPServer_NilConfig(t *testing.T) {
	assert.Nil(t, StartHTTPServer(nil))
}
