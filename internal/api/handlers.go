package api

import (
	"net/http"
	"strconv"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "name, email and password are required"})
		return
	}
	m, err := s.roster.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"member_id": m.ID,
		"name":      m.Name,
	})
}

func (s *Server) handleListHeroes(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(r, "id")
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid member id"})
		return
	}
	heroes, err := s.roster.Heroes(r.Context(), memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(heroes))
	for _, ph := range heroes {
		u, err := s.roster.Unit(r.Context(), ph)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, map[string]any{
			"player_hero_id": u.PlayerHeroID,
			"hero_id":        u.HeroID,
			"name":           u.Name,
			"level":          u.Level,
			"current_hp":     u.CurrentHP,
			"max_hp":         u.MaxHP,
			"atk_phys":       u.AtkPhys,
			"atk_mag":        u.AtkMag,
			"speed":          u.Speed,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"heroes": out})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64  `json:"member_id"`
		Name     string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	team, err := s.roster.CreateTeam(r.Context(), req.MemberID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"team_id": team.ID,
		"name":    team.Name,
		"active":  team.Active,
	})
}

func (s *Server) handleActivateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
		TeamID   int64 `json:"team_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.roster.ActivateTeam(r.Context(), req.MemberID, req.TeamID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"team_id": req.TeamID, "active": true})
}

func (s *Server) handleAddTeamHero(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID     int64 `json:"member_id"`
		PlayerHeroID int64 `json:"player_hero_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	slot, err := s.roster.AddToTeam(r.Context(), req.MemberID, req.PlayerHeroID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"team_id":        slot.TeamID,
		"player_hero_id": slot.PlayerHeroID,
		"position":       slot.Position,
	})
}

func (s *Server) handleRemoveTeamHero(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID     int64 `json:"member_id"`
		PlayerHeroID int64 `json:"player_hero_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.roster.RemoveFromTeam(r.Context(), req.MemberID, req.PlayerHeroID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": req.PlayerHeroID})
}

func (s *Server) handleHealHero(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID     int64 `json:"member_id"`
		PlayerHeroID int64 `json:"player_hero_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.roster.HealHero(r.Context(), req.MemberID, req.PlayerHeroID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"player_hero_id": u.PlayerHeroID,
		"current_hp":     u.CurrentHP,
		"max_hp":         u.MaxHP,
	})
}

func (s *Server) handleHealAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	healed, err := s.roster.HealAllHeroes(r.Context(), req.MemberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"healed": healed})
}

func (s *Server) handleJoinRaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
		RaidID   int64 `json:"raid_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	room, err := s.raids.JoinMatchmaking(r.Context(), req.MemberID, req.RaidID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"room_id": room.ID,
		"name":    room.Name,
		"state":   room.State,
	})
}

func (s *Server) handleSoloRaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
		RaidID   int64 `json:"raid_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	room, err := s.raids.StartSoloRaid(r.Context(), req.MemberID, req.RaidID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"room_id": room.ID,
		"state":   room.State,
	})
}

func (s *Server) handleSoloLegacy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
		EnemyID  int64 `json:"enemy_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	room, err := s.raids.StartSoloLegacy(r.Context(), req.MemberID, req.EnemyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"room_id": room.ID,
		"state":   room.State,
	})
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
		RoomID   int64 `json:"room_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.raids.StartRoomManually(r.Context(), req.MemberID, req.RoomID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"room_id": req.RoomID, "started": true})
}

// handleRoomState serves the poll endpoint: the snapshot always runs the
// room's tick first, so polling is what drives a room forward.
func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(r, "id")
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid room id"})
		return
	}
	snap, err := s.raids.RoomSnapshot(r.Context(), roomID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID      int64 `json:"member_id"`
		RoomID        int64 `json:"room_id"`
		TargetEnemyID int64 `json:"target_enemy_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.raids.SubmitDecision(r.Context(), req.MemberID, req.RoomID, req.TargetEnemyID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
		BannerID int64 `json:"banner_id"`
		Count    int   `json:"count"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Count <= 1 {
		res, err := s.pulls.PerformPull(r.Context(), req.MemberID, req.BannerID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"results": []any{res}})
		return
	}
	results, err := s.pulls.PerformPullMulti(r.Context(), req.MemberID, req.BannerID, req.Count)
	if err != nil {
		// Earlier pulls in the batch stay committed; report both.
		if len(results) > 0 {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"results": results,
				"error":   err.Error(),
			})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
