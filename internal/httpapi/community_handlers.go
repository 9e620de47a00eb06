package httpapi

import (
	"net/http"
	"strings"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/perms"
)

type authorizeRequest struct {
	OwnerID string        `json:"owner_id"`
	Actor   perms.Actor   `json:"actor"`
	Feature string        `json:"feature"`
	Target  *perms.Target `json:"target,omitempty"`
}

type overrideChangeRequest struct {
	ActorID string `json:"actor_id"`
	Group   string `json:"group"`
}

type bootstrapRequest struct {
	ActorID string        `json:"actor_id"`
	Groups  []perms.Group `json:"groups"`
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

func (a *API) handleCommunityScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/communities/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	communityID := parts[0]
	rest := parts[2:]
	switch parts[1] {
	case "authorize":
		if len(rest) != 0 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleAuthorize(w, r, communityID)
	case "overrides":
		a.handleOverrides(w, r, communityID, rest)
	case "security":
		a.handleSecurity(w, r, communityID, rest)
	case "suspensions":
		a.handleSuspensions(w, r, communityID, rest)
	case "audit":
		switch {
		case len(rest) == 0:
			a.handleAudit(w, r, communityID)
		case len(rest) == 1 && rest[0] == "stream":
			a.streamAudit(w, r, communityID)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// Authorization is a query, so read scope is enough.
	if !a.requireScope(w, r, scopeFor(http.MethodGet)) {
		return
	}
	if a.svc.Gate == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gate unavailable")
		return
	}
	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.svc.Gate.Authorize(r.Context(), perms.Request{
		CommunityID: communityID,
		OwnerID:     req.OwnerID,
		Actor:       req.Actor,
		Feature:     features.Key(req.Feature),
		Target:      req.Target,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleOverrides(w http.ResponseWriter, r *http.Request, communityID string, rest []string) {
	if a.svc.Overrides == nil {
		writeError(w, r, http.StatusServiceUnavailable, "override service unavailable")
		return
	}
	switch len(rest) {
	case 0:
		a.listOverrides(w, r, communityID)
	case 1:
		feature := features.Key(rest[0])
		switch r.Method {
		case http.MethodGet:
			a.getOverride(w, r, communityID, feature)
		case http.MethodDelete:
			a.resetOverride(w, r, communityID, feature)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case 2:
		a.changeOverride(w, r, communityID, features.Key(rest[0]), rest[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listOverrides(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	var filter map[features.Key]struct{}
	if raw := strings.TrimSpace(r.URL.Query().Get("module")); raw != "" {
		filter = features.KeysForModules(strings.Split(raw, ",")...)
	}
	list, err := a.svc.Overrides.List(r.Context(), communityID, filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []perms.Override{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": list})
}

func (a *API) getOverride(w http.ResponseWriter, r *http.Request, communityID string, feature features.Key) {
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	o, found, err := a.svc.Overrides.Get(r.Context(), communityID, feature)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"override": o,
		"found":    found,
	})
}

func (a *API) resetOverride(w http.ResponseWriter, r *http.Request, communityID string, feature features.Key) {
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	existed, err := a.svc.Overrides.Reset(r.Context(), communityID, r.URL.Query().Get("actor_id"), feature)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"existed": existed})
}

func (a *API) changeOverride(w http.ResponseWriter, r *http.Request, communityID string, feature features.Key, op string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	var req overrideChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var (
		change perms.Change
		err    error
	)
	ctx := r.Context()
	switch op {
	case "allow":
		change, err = a.svc.Overrides.Allow(ctx, communityID, req.ActorID, feature, req.Group)
	case "deny":
		change, err = a.svc.Overrides.Deny(ctx, communityID, req.ActorID, feature, req.Group)
	case "clear":
		change, err = a.svc.Overrides.Clear(ctx, communityID, req.ActorID, feature, req.Group)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (a *API) handleSecurity(w http.ResponseWriter, r *http.Request, communityID string, rest []string) {
	if a.svc.Security == nil {
		writeError(w, r, http.StatusServiceUnavailable, "security service unavailable")
		return
	}
	switch {
	case len(rest) == 0:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.requireScope(w, r, scopeFor(r.Method)) {
			return
		}
		cfg, err := a.svc.Security.Get(r.Context(), communityID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case len(rest) == 1 && rest[0] == "bootstrap":
		a.bootstrap(w, r, communityID)
	case len(rest) == 2 && (rest[0] == "protected-groups" || rest[0] == "protected-users"):
		a.changeProtected(w, r, communityID, rest[0], rest[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) bootstrap(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	var req bootstrapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := a.svc.Security.Bootstrap(r.Context(), communityID, req.ActorID, perms.SeedGroups(req.Groups))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (a *API) changeProtected(w http.ResponseWriter, r *http.Request, communityID, kind, id string) {
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	var actorID string
	switch r.Method {
	case http.MethodPost:
		var req actorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actorID = req.ActorID
	case http.MethodDelete:
		actorID = r.URL.Query().Get("actor_id")
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}

	var (
		cfg perms.SecurityConfig
		err error
	)
	ctx := r.Context()
	switch {
	case kind == "protected-groups" && r.Method == http.MethodPost:
		cfg, err = a.svc.Security.AddProtected(ctx, communityID, actorID, id)
	case kind == "protected-groups":
		cfg, err = a.svc.Security.RemoveProtected(ctx, communityID, actorID, id)
	case r.Method == http.MethodPost:
		cfg, err = a.svc.Security.AddProtectedUser(ctx, communityID, actorID, id)
	default:
		cfg, err = a.svc.Security.RemoveProtectedUser(ctx, communityID, actorID, id)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	if a.svc.Audit == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), audit.DefaultListLimit, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.svc.Audit.List(r.Context(), communityID, audit.Query{
		Feature: features.Key(q.Get("feature")),
		Action:  audit.Action(q.Get("action")),
		ActorID: q.Get("actor_id"),
		Limit:   limit,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
