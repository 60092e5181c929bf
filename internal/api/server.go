package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// multipartOverhead is added to the upload limit to size the request body limit.
const multipartOverhead = 5 * 1024 * 1024

type Server struct {
	listenAddr string
	app        *fiber.App
}

// NewServer builds the fiber app and registers the routes.
func NewServer(addr string, rag Answerer, maxUploadBytes int64) *Server {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          ErrorHandler,
			BodyLimit:             int(maxUploadBytes) + multipartOverhead,
			DisableStartupMessage: true,
		})
		botHandler = NewBotHandler(rag)
	)

	app.Post("/bot", botHandler.HandleBot)
	app.Get("/health", botHandler.HandleHealth)

	return &Server{listenAddr: addr, app: app}
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run blocks until the server stops.
func (s *Server) Run() error {
	log.Info().Str("addr", s.listenAddr).Msg("Starting server")
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Server stopping")
	return s.app.ShutdownWithContext(ctx)
}
