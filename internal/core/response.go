// AngelaMos | 2026
// response.go

package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Code    string            `json:"code,omitempty"`
}

func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort response write
	_ = json.NewEncoder(w).Encode(resp)
}

func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Created(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusCreated, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func JSONError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError(err)
	}

	JSON(w, appErr.StatusCode, Response{
		Success: false,
		Message: appErr.Message,
		Errors:  appErr.Fields,
		Code:    appErr.Code,
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	JSONError(w, NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "BAD_REQUEST"))
}

func Unauthorized(w http.ResponseWriter, message string) {
	JSONError(w, UnauthorizedError(message))
}

func Forbidden(w http.ResponseWriter, message string) {
	JSONError(w, ForbiddenError(message))
}

func NotFound(w http.ResponseWriter, resource string) {
	JSONError(w, NotFoundError(resource))
}

// InternalServerError logs the cause with the request-scoped logger and
// writes a generic 500 so internals never reach the client.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	LoggerFromContext(r.Context()).Error("request failed",
		"error", err,
		"path", r.URL.Path,
	)
	JSONError(w, InternalError(err))
}

func InvalidRequest(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		JSONError(w, ValidationError(FormatValidationError(err), ValidationFields(verrs)))
		return
	}
	BadRequest(w, "invalid request body")
}

func FormatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "validation failed"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func ValidationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonFieldName(fe)] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	name := jsonFieldName(fe)
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "min":
		return name + " must be at least " + fe.Param() + " characters"
	case "max":
		return name + " must be at most " + fe.Param() + " characters"
	case "len":
		return name + " must be exactly " + fe.Param() + " characters"
	case "numeric":
		return name + " must contain only digits"
	case "excludes":
		return name + " must not contain '" + fe.Param() + "'"
	case "nefield":
		return name + " must differ from " + strings.ToLower(fe.Param())
	default:
		return name + " is invalid"
	}
}

func jsonFieldName(fe validator.FieldError) string {
	return toSnake(fe.Field())
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
