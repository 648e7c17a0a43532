// Package respond writes the flat JSON bodies the web client reads: a
// "message" next to the payload fields on success, and an "error" on failure.
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorBody is the failure payload.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes message merged with the top-level fields of data. data must
// encode to a JSON object; nil writes the message alone.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	body, err := merge(message, data)
	if err != nil {
		zap.L().Error("respond: payload is not a JSON object", zap.Error(err))
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	write(w, status, body)
}

// Error writes {"error": message} with status.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, ErrorBody{Error: message})
}

func merge(message string, data any) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	msg, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	fields["message"] = msg
	return fields, nil
}

func write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("respond: encode payload failed", zap.Error(err))
	}
}
