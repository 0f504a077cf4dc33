package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"timeblocker/internal/service"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error  string               `json:"error"`
	Errors []service.FieldError `json:"errors,omitempty"`
}

type successBody struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &service.ValidationError{Message: "Request body required"}
		}
		return &service.ValidationError{Message: "Invalid JSON body", Fields: jsonFieldError(err)}
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return toValidationError(verrs)
		}
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return err
	}
	return nil
}

func jsonFieldError(err error) []service.FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return []service.FieldError{{Field: typeErr.Field, Msg: fmt.Sprintf("must be %s", typeErr.Type)}}
	}
	return nil
}

func toValidationError(verrs validator.ValidationErrors) *service.ValidationError {
	out := &service.ValidationError{Message: service.ErrValidation.Error()}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, service.FieldError{Field: fe.Field(), Msg: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a UUID"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// fail maps a service error onto a response. Unclassified errors are logged and
// answered with the generic fallback message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Errors: verr.Fields})
	case errors.Is(err, service.ErrOverlap):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Time block overlaps with existing block"})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
	default:
		s.logger.Error(fallback, "err", err, "method", r.Method, "path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: fallback})
	}
}
