package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ai-trpg/keeper/internal/errors"
)

// health reports process and Redis connectivity (spec.md §6: "{status,
// redis: connected|disconnected}").
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	redisStatus := "connected"
	if err := h.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"redis":  redisStatus,
	})
}

type characterEnteredRequest struct {
	CharacterID string `json:"character_id"`
}

// characterEntered bootstraps a character's sheet, session, and map state
// (spec.md §6: "200 on success, 404 if sheet missing").
func (h *handler) characterEntered(w http.ResponseWriter, r *http.Request) {
	var req characterEnteredRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errors.InvalidArgumentf("decode request body: %v", err))
		return
	}
	if req.CharacterID == "" {
		writeError(w, errors.InvalidArgument("character_id is required"))
		return
	}

	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	sheet, sess, mapState, err := h.bootstrap.CharacterEntered(ctx, req.CharacterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sheet":      sheet,
		"session":    sess,
		"map_state":  mapState,
	})
}

type chatRequest struct {
	CharacterID string `json:"character_id"`
	Input       string `json:"input"`
}

type chatResponse struct {
	Reply              string   `json:"reply"`
	ConversationHistory []string `json:"conversation_history,omitempty"`
}

// chat drives one turn for the requesting character (spec.md §6). Since
// authentication is out of scope (spec.md §1 Non-goals), the caller
// identifies the character explicitly in the request body rather than via
// an ambient session cookie.
func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errors.InvalidArgumentf("decode request body: %v", err))
		return
	}
	if req.CharacterID == "" {
		writeError(w, errors.InvalidArgument("character_id is required"))
		return
	}
	if req.Input == "" {
		writeError(w, errors.InvalidArgument("input is required"))
		return
	}

	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	reply, err := h.orchestrator.Handle(ctx, req.CharacterID, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := chatResponse{Reply: reply}
	if h.history != nil {
		if entries, histErr := h.history.Get(ctx, req.CharacterID); histErr == nil {
			lines := make([]string, 0, len(entries))
			for _, e := range entries {
				lines = append(lines, e.Role+": "+e.Content)
			}
			resp.ConversationHistory = lines
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// characterData returns a combined sheet + session view for the client
// (spec.md §6: "combined sheet + status view").
func (h *handler) characterData(w http.ResponseWriter, r *http.Request) {
	characterID := r.URL.Query().Get("character_id")
	if characterID == "" {
		writeError(w, errors.InvalidArgument("character_id query parameter is required"))
		return
	}

	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	sheet, err := h.sheets.Get(ctx, characterID)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.sessions.Get(ctx, characterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sheet":   sheet,
		"session": sess,
	})
}

// characterSheet returns the raw character sheet view (spec.md §6).
func (h *handler) characterSheet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	sheet, err := h.sheets.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// sessionState returns the raw session state view (spec.md §6).
func (h *handler) sessionState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type reloadCatalogRequest struct {
	MapID string `json:"map_id"`
}

// reloadCatalog re-reads one map's static rows from the relational catalog
// without a process restart (SPEC_FULL.md §9).
func (h *handler) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	var req reloadCatalogRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errors.InvalidArgumentf("decode request body: %v", err))
		return
	}
	if req.MapID == "" {
		writeError(w, errors.InvalidArgument("map_id is required"))
		return
	}

	ctx, cancel := withRequestTimeout(r)
	defer cancel()

	mapState, err := h.bootstrap.ReloadMap(ctx, req.MapID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapState)
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to an HTTP status via internal/errors.Code.HTTPStatus
// (spec.md §7 / SPEC_FULL.md §7) and writes a structured error body.
func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  code.String(),
	})
}
