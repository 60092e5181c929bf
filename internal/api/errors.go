package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"mindpages/internal/ragerr"
)

const (
	msgMissingInput  = "Context file or question is missing"
	msgServiceConfig = "AI service configuration error. Please contact support."
	msgUnexpected    = "An unexpected error occurred. Please try again."
)

// ErrorHandler maps pipeline error kinds onto HTTP statuses.
// Configuration failures are masked; their details only reach the log.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var rerr *ragerr.Error
	if errors.As(err, &rerr) {
		kind := rerr.Kind.External()
		apiErr = NewError(statusFor(kind), rerr.Message)
		if kind.Masked() {
			apiErr.Message = msgServiceConfig
		}
		log.Error().Err(err).Str("kind", string(kind)).Str("path", c.Path()).Int("status", apiErr.Code).Msg("Request failed")
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		log.Warn().Err(err).Str("path", c.Path()).Int("status", fe.Code).Msg("Request failed")
		return c.Status(fe.Code).JSON(NewError(fe.Code, fe.Message))
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Unexpected error")
	return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, msgUnexpected))
}

func statusFor(kind ragerr.Kind) int {
	switch kind {
	case ragerr.KindValidation, ragerr.KindDocument:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

type Error struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, msg string) Error {
	return Error{
		Code:    code,
		Message: msg,
	}
}

func ErrMissingInput() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: msgMissingInput,
	}
}
