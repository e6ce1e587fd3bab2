package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jgirmay/presencehub/pkg/http/dto"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, &dto.ErrorResponse{
		Error:     code,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	})
}

// decodeJSON decodes and validates a request body. An empty body decodes
// to the zero value.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
