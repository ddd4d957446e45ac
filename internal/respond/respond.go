// Package respond renders every API response in the {success, status_code,
// detail} envelope.
package respond

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool `json:"success"`
	StatusCode int  `json:"status_code"`
	Detail     any  `json:"detail"`
}

// OK writes a 200 envelope carrying detail.
func OK(c *fiber.Ctx, detail any) error {
	return Status(c, http.StatusOK, detail)
}

// Status writes an envelope with the given status; success follows the code.
func Status(c *fiber.Ctx, status int, detail any) error {
	return c.Status(status).JSON(Envelope{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Detail:     detail,
	})
}

// ValidationError carries per-field payload problems; it renders as 400.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %v", e.Details)
}

// Invalid returns a ValidationError for details.
func Invalid(details map[string]string) error {
	return &ValidationError{Details: details}
}

// ErrorHandler is the fiber ErrorHandler rendering errors in the envelope.
// Errors that are not *fiber.Error are reported as 500 without leaking their text.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return Status(c, http.StatusBadRequest, ve.Details)
	}

	status := http.StatusInternalServerError
	var detail any = http.StatusText(status)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		detail = fe.Message
	}
	return Status(c, status, detail)
}
