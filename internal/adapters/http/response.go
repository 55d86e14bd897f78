package http

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorWith(w, statusCode, code, message, nil)
}

// writeErrorWith merges typed detail fields into the error body, e.g.
// {rarity, maxEditions} on an edition-limit conflict.
func writeErrorWith(w http.ResponseWriter, statusCode int, code, message string, fields map[string]any) {
	body := map[string]any{
		"status":  "error",
		"code":    code,
		"message": message,
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, statusCode, body)
}
