// Package server exposes the watcher's health and cycle status over HTTP
// for monitoring a long-running instance.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"flatwatch-go/pkg/logger"
	"flatwatch-go/pkg/watch"
)

type Config struct {
	Host string
	Port int
}

// StatusResponse is the payload of GET /status.
type StatusResponse struct {
	Status    string                    `json:"status"`
	Instance  string                    `json:"instance"`
	Timestamp string                    `json:"timestamp"`
	Platforms map[string]PlatformStatus `json:"platforms"`
	Health    map[string]bool           `json:"health"`
}

type PlatformStatus struct {
	State     string             `json:"state"`
	Retained  int                `json:"retained"`
	LastCycle *watch.CycleResult `json:"last_cycle,omitempty"`
}

type Server struct {
	app      *fiber.App
	config   Config
	instance string
	watcher  *watch.Watcher
	log      *logger.Logger
}

func New(config Config, instance string, watcher *watch.Watcher) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	s := &Server{
		app:      app,
		config:   config,
		instance: instance,
		watcher:  watcher,
		log:      logger.GetLogger().WithComponent("server"),
	}

	app.Get("/healthz", s.handleHealthz)
	app.Get("/status", s.handleStatus)
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.log.WithField("addr", addr).Info("Status server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	states := s.watcher.States()
	results := s.watcher.Results()
	sizes := s.watcher.StoreSizes()

	status := "ok"
	platforms := make(map[string]PlatformStatus, len(states))
	health := make(map[string]bool, len(states))

	for platform, state := range states {
		ps := PlatformStatus{State: state, Retained: sizes[platform]}
		healthy := true
		if result, ok := results[platform]; ok {
			last := result
			ps.LastCycle = &last
			healthy = result.Success
		}
		platforms[platform] = ps
		health[platform] = healthy
		if !healthy {
			status = "degraded"
		}
	}

	return c.JSON(StatusResponse{
		Status:    status,
		Instance:  s.instance,
		Timestamp: time.Now().Format(time.RFC3339),
		Platforms: platforms,
		Health:    health,
	})
}
