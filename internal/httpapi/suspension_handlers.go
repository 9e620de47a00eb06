package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/bredsky212/Logiq212/internal/perms"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

type suspendRequest struct {
	OwnerID  string       `json:"owner_id"`
	Actor    perms.Actor  `json:"actor"`
	Target   perms.Target `json:"target"`
	Duration string       `json:"duration"`
	Reason   string       `json:"reason"`
}

type unsuspendRequest struct {
	OwnerID string      `json:"owner_id"`
	Actor   perms.Actor `json:"actor"`
	Reason  string      `json:"reason"`
}

func (a *API) handleSuspensions(w http.ResponseWriter, r *http.Request, communityID string, rest []string) {
	if a.svc.Suspensions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "suspension service unavailable")
		return
	}
	switch len(rest) {
	case 0:
		a.suspend(w, r, communityID)
	case 1:
		a.suspensionStatus(w, r, communityID, rest[0])
	case 2:
		switch rest[1] {
		case "end":
			a.unsuspend(w, r, communityID, rest[0])
		case "expired":
			a.expire(w, r, communityID, rest[0])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) suspend(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	var req suspendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(req.Duration))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "duration must be a Go duration such as 15m or 1h")
		return
	}
	res, err := a.svc.Suspensions.Suspend(r.Context(), suspension.SuspendRequest{
		CommunityID: communityID,
		OwnerID:     req.OwnerID,
		Actor:       req.Actor,
		Target:      req.Target,
		Duration:    d,
		Reason:      req.Reason,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !res.Verdict.Allowed {
		writeJSON(w, http.StatusForbidden, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) unsuspend(w http.ResponseWriter, r *http.Request, communityID, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	var req unsuspendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Suspensions.Unsuspend(r.Context(), suspension.UnsuspendRequest{
		CommunityID: communityID,
		OwnerID:     req.OwnerID,
		Actor:       req.Actor,
		UserID:      userID,
		Reason:      req.Reason,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !res.Verdict.Allowed {
		writeJSON(w, http.StatusForbidden, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// expire is the platform's notification that a restriction ran out on its own.
func (a *API) expire(w http.ResponseWriter, r *http.Request, communityID, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	rec, ended, err := a.svc.Suspensions.Expire(r.Context(), communityID, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	resp := map[string]any{"ended": ended}
	if ended {
		resp["record"] = rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) suspensionStatus(w http.ResponseWriter, r *http.Request, communityID, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	st, err := a.svc.Suspensions.Status(r.Context(), communityID, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if st.History == nil {
		st.History = []suspension.Record{}
	}
	writeJSON(w, http.StatusOK, st)
}
