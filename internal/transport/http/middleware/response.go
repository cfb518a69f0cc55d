package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody matches the {"message": ...} envelope the handlers write.
type errorBody struct {
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: msg})
}
