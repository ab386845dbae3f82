package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Frenky19/RiftTalk/internal/models"
	"github.com/Frenky19/RiftTalk/internal/service"
)

// MatchHandler exposes the coordinator's three operations over HTTP.
type MatchHandler struct {
	svc *service.Coordinator
}

func NewMatchHandler(s *service.Coordinator) *MatchHandler { return &MatchHandler{svc: s} }

type matchStartRequest struct {
	MatchID    string   `json:"match_id"`
	PlayerID   string   `json:"player_id"`
	PlayerName string   `json:"player_name"`
	BlueTeam   []string `json:"blue_team"`
	RedTeam    []string `json:"red_team"`
}

func (r matchStartRequest) validate() error {
	if err := validateMatchID(r.MatchID); err != nil {
		return err
	}
	return validatePlayerID(r.PlayerID)
}

type matchPlayerRequest struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
}

func (r matchPlayerRequest) validate() error {
	if err := validateMatchID(r.MatchID); err != nil {
		return err
	}
	return validatePlayerID(r.PlayerID)
}

type matchEndRequest struct {
	MatchID string `json:"match_id"`
}

func (r matchEndRequest) validate() error {
	return validateMatchID(r.MatchID)
}

func (h *MatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var in matchStartRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.ReportMatchStart(r.Context(), models.MatchStartInput{
		MatchID:    normalizeID(in.MatchID),
		PlayerID:   normalizeID(in.PlayerID),
		PlayerName: in.PlayerName,
		BlueTeam:   in.BlueTeam,
		RedTeam:    in.RedTeam,
	})
	if err != nil {
		log.Error().Err(err).Str("match_id", in.MatchID).Msg("match start failed")
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *MatchHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var in matchPlayerRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ReportMatchLeave(r.Context(), normalizeID(in.MatchID), normalizeID(in.PlayerID)); err != nil {
		log.Error().Err(err).Str("match_id", in.MatchID).Msg("match leave failed")
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *MatchHandler) End(w http.ResponseWriter, r *http.Request) {
	var in matchEndRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.EndMatch(r.Context(), normalizeID(in.MatchID)); err != nil {
		log.Error().Err(err).Str("match_id", in.MatchID).Msg("match end failed")
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "match_id": normalizeID(in.MatchID)})
}

func (h *MatchHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidMatchID),
		errors.Is(err, service.ErrMissingPlayerID):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTeamDataMissing):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
