// Copyright 2025 James Ross
package api

import (
	"encoding/json"
	"net/http"

	"github.com/driftguard/driftguard/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a core error kind to an HTTP status and writes a JSON body.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.InvalidInput, apperr.NoEvents, apperr.NoBaselines, apperr.NotEnoughData, apperr.BaselineMissing:
		status = http.StatusBadRequest
	case apperr.Unauthorized:
		status = http.StatusUnauthorized
	case apperr.NotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]interface{}{"error": err.Error(), "kind": kind})
}
