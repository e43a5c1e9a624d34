package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// GET  /api/games/scores?game=reaction|twenty|rpg
//   reaction/twenty rank ascending (lower is better), rpg by level
//   descending. Top 50 with staff names.
// POST /api/games/scores {game, staffId, value, extra}
//   reaction/twenty update only on a personal best; rpg rows belong to
//   the rpg handler and are rejected here.
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleScoresRead(w, r)
	case http.MethodPost:
		s.handleScoresSubmit(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func validGame(game string) bool {
	return game == gameRPG || game == gameReaction || game == gameTwenty
}

func (s *Server) handleScoresRead(w http.ResponseWriter, r *http.Request) {
	game := r.URL.Query().Get("game")
	if game == "" {
		writeError(w, http.StatusBadRequest, "game required")
		return
	}
	if !validGame(game) {
		writeError(w, http.StatusBadRequest, "unknown game")
		return
	}

	// The redis mirror serves the hot rpg ranking when available; SQL
	// remains authoritative and fills in the names either way.
	if game == gameRPG {
		if ranks, ok := s.boards.topRPG(r.Context(), 50); ok {
			writeJSON(w, http.StatusOK, s.attachStaffNames(r.Context(), ranks))
			return
		}
	}

	rows, err := s.store.TopScores(r.Context(), game, 50)
	if err != nil {
		log.Printf("score read failed for %s: %v", game, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if rows == nil {
		rows = []ScoreRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// attachStaffNames resolves ids to names, dropping rows for staff that
// no longer exist so both ranking backends return the same shape.
func (s *Server) attachStaffNames(ctx context.Context, ranks []ScoreRow) []ScoreRow {
	rows := make([]ScoreRow, 0, len(ranks))
	for _, row := range ranks {
		staff, found, err := s.store.StaffByID(ctx, row.StaffID)
		if err != nil || !found {
			continue
		}
		row.Name = staff.Name
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) handleScoresSubmit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Game    string `json:"game"`
		StaffID int64  `json:"staffId"`
		Value   int64  `json:"value"`
		Extra   int64  `json:"extra"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Game == "" || body.StaffID == 0 {
		writeError(w, http.StatusBadRequest, "game & staffId required")
		return
	}
	if !validGame(body.Game) {
		writeError(w, http.StatusBadRequest, "unknown game")
		return
	}
	if body.Game == gameRPG {
		writeError(w, http.StatusBadRequest, "rpg scores are written by the rpg endpoint")
		return
	}
	if _, found, err := s.store.StaffByID(r.Context(), body.StaffID); err != nil {
		log.Printf("staff lookup failed for %d: %v", body.StaffID, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	} else if !found {
		writeError(w, http.StatusNotFound, "staff not found")
		return
	}

	updated, err := s.store.SubmitScore(r.Context(), body.Game, body.StaffID, body.Value, body.Extra)
	if err != nil {
		log.Printf("score submit failed for %s: %v", body.Game, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if updated {
		s.logEvent(body.Game, "new best by staff#"+strconv.FormatInt(body.StaffID, 10))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "unchanged": !updated})
}

func (s *Server) handleBossKills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rows, err := s.store.BossKillRanking(r.Context(), 50)
	if err != nil {
		log.Printf("boss kill ranking failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if rows == nil {
		rows = []BossKillRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}
