package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/runraids/server/internal/pull"
	"github.com/runraids/server/internal/raid"
	"github.com/runraids/server/internal/roster"
)

// Server is the JSON HTTP facade over the domain services. Identity is a
// plain member_id in the request; session handling sits in front of this
// service and is out of scope here.
type Server struct {
	roster *roster.Service
	raids  *raid.Service
	pulls  *pull.Service
	log    *zap.Logger
}

func NewServer(ros *roster.Service, raids *raid.Service, pulls *pull.Service, log *zap.Logger) *Server {
	return &Server{roster: ros, raids: raids, pulls: pulls, log: log}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/members", s.handleRegister)
	mux.HandleFunc("GET /api/members/{id}/heroes", s.handleListHeroes)
	mux.HandleFunc("POST /api/teams", s.handleCreateTeam)
	mux.HandleFunc("POST /api/teams/activate", s.handleActivateTeam)
	mux.HandleFunc("POST /api/teams/heroes", s.handleAddTeamHero)
	mux.HandleFunc("DELETE /api/teams/heroes", s.handleRemoveTeamHero)
	mux.HandleFunc("POST /api/heroes/heal", s.handleHealHero)
	mux.HandleFunc("POST /api/heroes/heal-all", s.handleHealAll)

	mux.HandleFunc("POST /api/raids/join", s.handleJoinRaid)
	mux.HandleFunc("POST /api/raids/solo", s.handleSoloRaid)
	mux.HandleFunc("POST /api/raids/solo-legacy", s.handleSoloLegacy)
	mux.HandleFunc("POST /api/raids/start", s.handleStartRoom)
	mux.HandleFunc("GET /api/raids/rooms/{id}", s.handleRoomState)
	mux.HandleFunc("POST /api/raids/decision", s.handleDecision)

	mux.HandleFunc("POST /api/pulls", s.handlePull)

	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body; the detail goes to the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, raid.ErrRaidNotFound),
		errors.Is(err, raid.ErrEnemyNotFound),
		errors.Is(err, raid.ErrRoomNotFound),
		errors.Is(err, roster.ErrMemberNotFound),
		errors.Is(err, roster.ErrHeroNotFound),
		errors.Is(err, roster.ErrTeamNotFound),
		errors.Is(err, pull.ErrBannerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, raid.ErrNoTeam),
		errors.Is(err, raid.ErrAllHeroesDead),
		errors.Is(err, raid.ErrRoomNotStartable),
		errors.Is(err, raid.ErrRaidNotInProgress),
		errors.Is(err, raid.ErrNotHeroTurn),
		errors.Is(err, raid.ErrWrongTurn),
		errors.Is(err, raid.ErrActorDead),
		errors.Is(err, raid.ErrNoLivingEnemy),
		errors.Is(err, roster.ErrNoTeam),
		errors.Is(err, roster.ErrTeamFull),
		errors.Is(err, roster.ErrDuplicateHero),
		errors.Is(err, pull.ErrBannerInactive),
		errors.Is(err, pull.ErrInvalidCost),
		errors.Is(err, pull.ErrBatchTooLarge):
		status = http.StatusConflict
	case errors.Is(err, raid.ErrNotOwner),
		errors.Is(err, raid.ErrNotParticipant):
		status = http.StatusForbidden
	case errors.Is(err, pull.ErrInsufficientCurrency):
		status = http.StatusPaymentRequired
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}
