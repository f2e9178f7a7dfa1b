package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// validationMessage reports the first failed field
func validationMessage(err error) string {
	if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
		return fmt.Sprintf("validation error: %s - %s", ve[0].Field(), ve[0].Tag())
	}
	return "validation error: invalid request"
}

// optionalInt64 parses an optional query parameter; ok is false when it is malformed
func optionalInt64(r *http.Request, key string) (v *int64, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &n, true
}
