package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"mindpages/internal/models"
)

// Answerer is the pipeline as seen by the transport.
type Answerer interface {
	Answer(ctx context.Context, upload *models.Upload, question string) (*models.QueryResult, error)
	CheckHealth(ctx context.Context) models.Health
}

type BotResponse struct {
	BotAns string `json:"bot_ans"`
}

type BotHandler struct {
	rag Answerer
}

func NewBotHandler(rag Answerer) *BotHandler {
	return &BotHandler{rag: rag}
}

// HandleBot answers the "question" form field from the PDF in the "context" file field.
func (h *BotHandler) HandleBot(c *fiber.Ctx) error {
	question := c.FormValue("question")
	fileHeader, err := c.FormFile("context")
	if err != nil || fileHeader == nil || question == "" {
		return ErrMissingInput()
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	log.Info().Str("file", fileHeader.Filename).Int64("size", fileHeader.Size).Msg("Received question")
	result, err := h.rag.Answer(c.UserContext(), &models.Upload{
		Name:    fileHeader.Filename,
		Size:    fileHeader.Size,
		Content: file,
	}, question)
	if err != nil {
		return err
	}
	return c.JSON(BotResponse{BotAns: result.Answer})
}

func (h *BotHandler) HandleHealth(c *fiber.Ctx) error {
	health := h.rag.CheckHealth(c.UserContext())
	status := fiber.StatusOK
	if health.Status != models.StatusHealthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}
