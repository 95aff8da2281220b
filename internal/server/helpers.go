package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/missionloop/missiond/internal/gateway"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// readJSONOptional decodes a body that handlers treat as optional; an
// empty or absent body is not an error.
func readJSONOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

// writeGatewayError maps gateway failures onto HTTP codes. A remote
// rejection keeps its message; a dead connection reads as 502.
func writeGatewayError(w http.ResponseWriter, err error) {
	var remote *gateway.RemoteError
	if errors.As(err, &remote) {
		writeError(w, http.StatusBadGateway, remote.Message)
		return
	}
	if errors.Is(err, gateway.ErrRPCTimeout) {
		writeError(w, http.StatusGatewayTimeout, "gateway request timed out")
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
