package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
)

// POST body for /api/games/rpg. Payload shape depends on the action:
// equip wants {type}, pickup wants {x, y}; the rest take none.
type rpgRequest struct {
	StaffID int64       `json:"staffId"`
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

func (s *Server) handleRPG(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleRPGRead(w, r)
	case http.MethodPost:
		s.handleRPGAction(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleRPGRead returns current state (or null) plus the shop and boss
// config for client sync. Never mutates.
func (s *Server) handleRPGRead(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("staffId")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "staffId required")
		return
	}
	staffID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "staffId must be a number")
		return
	}
	st, found, err := s.store.LoadPlayerState(r.Context(), staffID)
	if err != nil {
		log.Printf("rpg read failed for staff %d: %v", staffID, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	var statePayload interface{}
	if found {
		s.engine.normalizeState(st)
		statePayload = st
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": statePayload,
		"shop":  s.engine.Config().ShopItems,
		"boss":  s.engine.Config().BossOrDefault(),
	})
}

func (s *Server) handleRPGAction(w http.ResponseWriter, r *http.Request) {
	var req rpgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.StaffID == 0 || req.Action == "" {
		writeError(w, http.StatusBadRequest, "staffId & action required")
		return
	}

	staff, found, err := s.store.StaffByID(r.Context(), req.StaffID)
	if err != nil {
		log.Printf("staff lookup failed for %d: %v", req.StaffID, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "staff not found")
		return
	}

	st, exists, err := s.store.LoadPlayerState(r.Context(), req.StaffID)
	if err != nil {
		log.Printf("rpg load failed for staff %d: %v", req.StaffID, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if !exists {
		st = s.engine.NewPlayerState(staff.Name)
	}
	// Defensive against stale or hand-edited blobs.
	s.engine.normalizeState(st)

	var result interface{}
	switch req.Action {
	case "init", "save":
		// init returns current state for client sync; save is a
		// placeholder, state persists after every action anyway.
	case "heal":
		result = s.engine.Rest(st)
	case "battle":
		enemy := s.engine.SpawnEnemy(st.Level)
		result = s.engine.ResolveBattle(st, enemy)
	case "boss":
		result = s.engine.FightBoss(st)
	case "equip":
		payload := toMap(req.Payload)
		result = s.engine.BuyItem(st, toString(payload, "type"))
	case "pickup":
		payload := toMap(req.Payload)
		x, okX := toInt(payload, "x")
		y, okY := toInt(payload, "y")
		if !okX || !okY {
			writeError(w, http.StatusBadRequest, "x & y required")
			return
		}
		result = s.engine.OpenChest(st, x, y)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	// Recompute once more, then persist the whole document plus the
	// two ranking scalars.
	s.engine.normalizeState(st)
	if err := s.store.SavePlayerState(r.Context(), req.StaffID, st); err != nil {
		log.Printf("rpg save failed for staff %d: %v", req.StaffID, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	s.boards.recordRPG(r.Context(), req.StaffID, st.Level, st.Gold)
	s.logEvent(gameRPG, fmt.Sprintf("rpg action %s by staff#%d", req.Action, req.StaffID))

	resp := map[string]interface{}{
		"state":  st,
		"result": result,
	}
	if req.Action == "init" {
		// init doubles as the client's first sync, so it ships the
		// shop and boss config like the GET endpoint does.
		resp["shop"] = s.engine.Config().ShopItems
		resp["boss"] = s.engine.Config().BossOrDefault()
	}
	writeJSON(w, http.StatusOK, resp)
}
