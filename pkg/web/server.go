// Package web exposes the device-facing HTTP surface: the session
// WebSocket, health and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/bridge"
	"github.com/wrenlabs/go-wren/pkg/directory"
)

const userLocal = "wren_user"

// Server is the device-facing HTTP/WebSocket server.
type Server struct {
	app  *fiber.App
	orch *bridge.Orchestrator
	addr string
}

// NewServer builds the fiber app and its routes.
func NewServer(addr string, orch *bridge.Orchestrator, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		orch: orch,
		addr: addr,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Wren Bridge",
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Upgrade middleware: devices are authenticated before the upgrade so a
	// bad token costs one HTTP response, not a WebSocket handshake.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := bearerToken(c)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}

		user, err := s.orch.Authenticate(c.Context(), token)
		if err != nil {
			if errors.Is(err, directory.ErrUnauthorized) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
			}
			log.Error("directory unavailable during auth", "error", err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "directory unavailable")
		}

		// Firmware reports link quality on connect; informational only.
		if rssi := c.Get("X-Wren-RSSI"); rssi != "" {
			log.Debug("device link quality", "device", user.Device.DeviceID, "rssi", rssi)
		}

		c.Locals(userLocal, user)
		return c.Next()
	})

	app.Get("/ws/session", websocket.New(s.handleSession))

	s.app = app
	return s
}

// bearerToken extracts the session token from the Authorization header,
// falling back to the token query parameter some firmware revisions use.
func bearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.Query("token")
}

// handleSession hands an upgraded device connection to the orchestrator.
func (s *Server) handleSession(c *websocket.Conn) {
	user, ok := c.Locals(userLocal).(*directory.UserRecord)
	if !ok {
		c.Close()
		return
	}
	s.orch.Handle(context.Background(), c, user)
}

// Listen serves until Shutdown or a fatal listener error.
func (s *Server) Listen() error {
	log.Info("device server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
