package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T, cfg *GameConfig, rng Rand) (*Server, *sqlStore) {
	t.Helper()
	store, err := openSQLiteStore(filepath.Join(t.TempDir(), "gameserver.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.UpsertStaff(context.Background(), 1, "Tanaka", "1234"); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	if cfg == nil {
		cfg = DefaultGameConfig()
	}
	if rng == nil {
		rng = &scriptedRand{}
	}
	srv := NewServer(defaultServerConfig(), NewEngine(cfg, rng), store, &leaderboard{}, newLogFeed())
	return srv, store
}

func postRPG(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/games/rpg", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

type rpgResponse struct {
	State  *PlayerState    `json:"state"`
	Result json.RawMessage `json:"result"`
}

func decodeRPG(t *testing.T, rec *httptest.ResponseRecorder) rpgResponse {
	t.Helper()
	var resp rpgResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestRPGActionValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing staffId", body: `{"action":"init"}`, want: http.StatusBadRequest},
		{name: "missing action", body: `{"staffId":1}`, want: http.StatusBadRequest},
		{name: "unknown action", body: `{"staffId":1,"action":"fly"}`, want: http.StatusBadRequest},
		{name: "unknown staff", body: `{"staffId":99,"action":"init"}`, want: http.StatusNotFound},
		{name: "pickup without coords", body: `{"staffId":1,"action":"pickup","payload":{}}`, want: http.StatusBadRequest},
		{name: "pickup fractional coords", body: `{"staffId":1,"action":"pickup","payload":{"x":7.9,"y":3}}`, want: http.StatusBadRequest},
		{name: "garbage body", body: `{nope`, want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := postRPG(t, srv, tc.body); rec.Code != tc.want {
				t.Fatalf("status=%d want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestRPGInitCreatesAndPersistsState(t *testing.T) {
	srv, store := newTestServer(t, nil, nil)

	rec := postRPG(t, srv, `{"staffId":1,"action":"init"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeRPG(t, rec)
	if resp.State == nil || resp.State.Level != 1 || resp.State.Name != "Tanaka" {
		t.Fatalf("unexpected state: %+v", resp.State)
	}
	if len(resp.Result) != 0 && string(resp.Result) != "null" {
		t.Fatalf("init should have no result, got %s", resp.Result)
	}

	// init is the client's first sync, so it carries the shop and boss
	// config alongside the state.
	var envelope struct {
		Shop map[string]ShopItem `json:"shop"`
		Boss BossConfig          `json:"boss"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode config sections: %v", err)
	}
	if len(envelope.Shop) == 0 || envelope.Boss.HP == 0 {
		t.Fatalf("init missing config sections: %s", rec.Body.String())
	}

	rec = postRPG(t, srv, `{"staffId":1,"action":"heal"}`)
	envelope.Shop = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Shop != nil {
		t.Fatalf("non-init actions should not ship the shop config")
	}

	st, found, err := store.LoadPlayerState(context.Background(), 1)
	if err != nil || !found {
		t.Fatalf("state not persisted: found=%v err=%v", found, err)
	}
	if st.Name != "Tanaka" {
		t.Fatalf("persisted name=%q", st.Name)
	}
}

func TestRPGFailedPurchaseLeavesStateUnchanged(t *testing.T) {
	srv, store := newTestServer(t, nil, nil)

	postRPG(t, srv, `{"staffId":1,"action":"init"}`)
	rec := postRPG(t, srv, `{"staffId":1,"action":"equip","payload":{"type":"sword"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("business failure must be 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeRPG(t, rec)
	var result ActionResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OK {
		t.Fatalf("expected business failure, got %+v", result)
	}

	st, _, err := store.LoadPlayerState(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Gold != 0 || len(st.Equipment) != 0 {
		t.Fatalf("failed purchase mutated state: %+v", st)
	}
}

func TestRPGBattlePersistsOutcome(t *testing.T) {
	// Scripted draws: jitter 10 (level delta 0), species 0, variance
	// 1.0 -> a level-1 imp the level-1 player beats deterministically.
	rng := &scriptedRand{ints: []int{10, 0}, floats: []float64{0.5, 0.5, 0.5, 0.5}}
	srv, store := newTestServer(t, nil, rng)

	postRPG(t, srv, `{"staffId":1,"action":"init"}`)
	rec := postRPG(t, srv, `{"staffId":1,"action":"battle"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeRPG(t, rec)
	var result BattleResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Victory {
		t.Fatalf("expected victory: %+v", result)
	}
	if len(result.Events) == 0 || result.Events[0].Actor != "player" {
		t.Fatalf("missing or misordered event log: %+v", result.Events)
	}

	st, _, err := store.LoadPlayerState(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Gold != result.GoldGain {
		t.Fatalf("gold=%d want %d", st.Gold, result.GoldGain)
	}
}

func TestRPGReadEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/games/rpg?staffId=1", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp struct {
		State *PlayerState        `json:"state"`
		Shop  map[string]ShopItem `json:"shop"`
		Boss  BossConfig          `json:"boss"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != nil {
		t.Fatalf("state should be null before first action")
	}
	if len(resp.Shop) == 0 || resp.Boss.HP == 0 {
		t.Fatalf("missing config sections: %s", rec.Body.String())
	}

	// Read never creates state.
	postRPG(t, srv, `{"staffId":1,"action":"init"}`)
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/rpg?staffId=1", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State == nil || resp.State.Level != 1 {
		t.Fatalf("state missing after init: %s", rec.Body.String())
	}
}

func TestLoginFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		srv.routes().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"code":"12"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("short code: status=%d", rec.Code)
	}
	if rec := post(`{"code":"9999"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown code: status=%d", rec.Code)
	}

	rec := post(`{"code":" 1-2 3 4 "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		Staff Staff  `json:"staff"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Staff.ID != 1 {
		t.Fatalf("staff=%+v", resp.Staff)
	}
	claims, err := parseAndValidateAuthToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.StaffID != 1 {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestScoresEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/games/scores", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		srv.routes().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"game":"rpg","staffId":1,"value":5}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("direct rpg submit should be rejected, got %d", rec.Code)
	}
	if rec := post(`{"game":"reaction","staffId":1,"value":250}`); rec.Code != http.StatusOK {
		t.Fatalf("submit failed: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/games/scores?game=reaction", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("read failed: %d", rec.Code)
	}
	var rows []ScoreRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Value != 250 || rows[0].Name != "Tanaka" {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestAttachStaffNamesDropsUnknownStaff(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rows := srv.attachStaffNames(context.Background(), []ScoreRow{
		{StaffID: 1, Value: 4, Extra: 9},
		{StaffID: 99, Value: 2},
	})
	if len(rows) != 1 {
		t.Fatalf("unknown staff should be dropped: %+v", rows)
	}
	if rows[0].Name != "Tanaka" || rows[0].Value != 4 || rows[0].Extra != 9 {
		t.Fatalf("row mangled: %+v", rows[0])
	}
}

func TestBossKillsEndpoint(t *testing.T) {
	cfg := DefaultGameConfig()
	cfg.Boss = &BossConfig{Level: 1, HP: 1, Atk: 1, Exp: 1, Gold: 1, Name: "Training Boss"}
	srv, _ := newTestServer(t, cfg, nil)

	postRPG(t, srv, `{"staffId":1,"action":"boss"}`)
	postRPG(t, srv, `{"staffId":1,"action":"boss"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/games/bossKills", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var rows []BossKillRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].BossKills != 2 {
		t.Fatalf("rows=%+v", rows)
	}
}
