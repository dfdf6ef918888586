// Package statusserver exposes a small HTTP surface for operators:
// liveness, per-channel status, and the WhatsApp pairing QR code.
package statusserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// ChannelStatus is one channel adapter's view for /api/status.
type ChannelStatus struct {
	Channel  string `json:"channel"`
	State    string `json:"state"`
	Sessions int    `json:"sessions"`
}

// QRStatus is the WhatsApp pairing snapshot for /api/whatsapp/qr.
type QRStatus struct {
	State string `json:"state"`
	QR    string `json:"qr,omitempty"`
}

type Options struct {
	Addr    string
	Version string
	// Channels reports the running adapters; called on each request.
	Channels func() []ChannelStatus
	// WhatsAppQR reports the pairing snapshot; nil when the WhatsApp
	// channel is not running.
	WhatsAppQR func() QRStatus
}

type Server struct {
	app    *fiber.App
	logger *slog.Logger
	opts   Options
}

func New(logger *slog.Logger, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(recover.New())

	s := &Server{app: app, logger: logger, opts: opts}
	app.Get("/health", s.health)
	app.Get("/api/status", s.status)
	app.Get("/api/whatsapp/qr", s.whatsappQR)
	return s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.opts.Addr)
	}()
	s.logger.Info("status_server_start", "addr", s.opts.Addr)

	select {
	case <-ctx.Done():
		_ = s.app.ShutdownWithTimeout(5 * time.Second)
		<-errCh
		s.logger.Info("status_server_stop", "reason", "context_canceled")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "sailsetu",
		"version": s.opts.Version,
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	var channels []ChannelStatus
	if s.opts.Channels != nil {
		channels = s.opts.Channels()
	}
	if channels == nil {
		channels = []ChannelStatus{}
	}
	return c.JSON(fiber.Map{
		"version":  s.opts.Version,
		"channels": channels,
	})
}

func (s *Server) whatsappQR(c *fiber.Ctx) error {
	if s.opts.WhatsAppQR == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "whatsapp channel is not running",
		})
	}
	st := s.opts.WhatsAppQR()
	if st.QR == "" {
		return c.JSON(fiber.Map{
			"state": st.State,
			"qr":    nil,
		})
	}
	return c.JSON(st)
}
