package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/obs"
	"github.com/bredsky212/Logiq212/internal/perms"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

// handleError maps domain errors to status codes.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, perms.ErrInvalidInput),
		errors.Is(err, perms.ErrInvalidFeatureKey),
		errors.Is(err, suspension.ErrDurationNotAllowed):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, perms.ErrAlreadyBootstrapped),
		errors.Is(err, perms.ErrLastProtectedGroup),
		errors.Is(err, perms.ErrNotBootstrapped):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, suspension.ErrNoActiveSuspension):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, suspension.ErrPlatformInconsistent):
		writeError(w, r, http.StatusBadGateway, err.Error())
	case errors.Is(err, perms.ErrStoreUnavailable):
		obs.Logger().Error("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "store unavailable")
	default:
		obs.Logger().Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
