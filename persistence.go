package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	gameRPG      = "rpg"
	gameReaction = "reaction"
	gameTwenty   = "twenty"

	// The ranking columns were born as 32-bit integers and external
	// ranking queries still read them that way. The JSON blob keeps the
	// full-precision gold; only the indexed column is clamped.
	maxGoldColumn = math.MaxInt32

	logRetention = 200
)

const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
)

type Staff struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type LogEntry struct {
	ID        int64  `json:"id"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

type ScoreRow struct {
	StaffID int64  `json:"staffId"`
	Name    string `json:"name"`
	Value   int64  `json:"value"`
	Extra   int64  `json:"extra"`
}

type BossKillRow struct {
	StaffID   int64  `json:"staffId"`
	Name      string `json:"name"`
	BossKills int    `json:"bossKills"`
}

// Store is the persistence collaborator: one opaque document per
// (game, staff) pair plus two scalar ranking columns kept in sync with
// the rpg blob. No cross-player transactions are assumed.
type Store interface {
	LoadPlayerState(ctx context.Context, staffID int64) (*PlayerState, bool, error)
	SavePlayerState(ctx context.Context, staffID int64, st *PlayerState) error

	StaffByID(ctx context.Context, id int64) (*Staff, bool, error)
	StaffByCode(ctx context.Context, code string) (*Staff, bool, error)
	ListStaff(ctx context.Context) ([]Staff, error)
	UpsertStaff(ctx context.Context, id int64, name, code string) error

	AddLog(ctx context.Context, event, message string) (*LogEntry, error)
	RecentLogs(ctx context.Context, limit int) ([]LogEntry, error)

	SubmitScore(ctx context.Context, game string, staffID, value, extra int64) (bool, error)
	TopScores(ctx context.Context, game string, limit int) ([]ScoreRow, error)
	BossKillRanking(ctx context.Context, limit int) ([]BossKillRow, error)

	Close() error
}

type sqlStore struct {
	db      *sql.DB
	backend string
}

// openStore picks the backend from PA_STORE_BACKEND: sqlite (default)
// against the given file path, or postgres against PA_DATABASE_URL.
func openStore(sqlitePath string) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PA_STORE_BACKEND")))
	switch backend {
	case "", backendSQLite, "db":
		return openSQLiteStore(sqlitePath)
	case backendPostgres, "pg":
		dsn := strings.TrimSpace(os.Getenv("PA_DATABASE_URL"))
		if dsn == "" {
			return nil, errors.New("PA_DATABASE_URL required for postgres backend")
		}
		return openPostgresStore(dsn)
	default:
		log.Printf("Unknown PA_STORE_BACKEND=%q, defaulting to sqlite", backend)
		return openSQLiteStore(sqlitePath)
	}
}

func openSQLiteStore(path string) (*sqlStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &sqlStore{db: db, backend: backendSQLite}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func openPostgresStore(dsn string) (*sqlStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &sqlStore{db: db, backend: backendPostgres}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) ensureSchema() error {
	logsID := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.backend == backendPostgres {
		logsID = "id BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS staff (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL,
  mgmt_code TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS game_scores (
  game TEXT NOT NULL,
  staff_id BIGINT NOT NULL,
  value BIGINT NOT NULL DEFAULT 0,
  extra BIGINT NOT NULL DEFAULT 0,
  meta TEXT,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (game, staff_id)
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS logs (
  %s,
  event TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, logsID),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *sqlStore) rebind(query string) string {
	if s.backend != backendPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) LoadPlayerState(ctx context.Context, staffID int64) (*PlayerState, bool, error) {
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT meta FROM game_scores WHERE game = ? AND staff_id = ?`),
		gameRPG, staffID,
	).Scan(&meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !meta.Valid || meta.String == "" {
		return nil, false, nil
	}
	var st PlayerState
	if err := json.Unmarshal([]byte(meta.String), &st); err != nil {
		return nil, false, fmt.Errorf("decode state blob for staff %d: %w", staffID, err)
	}
	return &st, true, nil
}

func (s *sqlStore) SavePlayerState(ctx context.Context, staffID int64, st *PlayerState) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return err
	}
	goldColumn := st.Gold
	if goldColumn > maxGoldColumn {
		goldColumn = maxGoldColumn
	}
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO game_scores (game, staff_id, value, extra, meta, updated_at)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (game, staff_id) DO UPDATE SET
  value = excluded.value,
  extra = excluded.extra,
  meta = excluded.meta,
  updated_at = CURRENT_TIMESTAMP`),
		gameRPG, staffID, int64(st.Level), goldColumn, string(blob),
	)
	return err
}

func (s *sqlStore) StaffByID(ctx context.Context, id int64) (*Staff, bool, error) {
	var st Staff
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name FROM staff WHERE id = ?`), id,
	).Scan(&st.ID, &st.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &st, true, nil
}

func (s *sqlStore) StaffByCode(ctx context.Context, code string) (*Staff, bool, error) {
	var st Staff
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name FROM staff WHERE mgmt_code = ?`), code,
	).Scan(&st.ID, &st.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &st, true, nil
}

func (s *sqlStore) ListStaff(ctx context.Context) ([]Staff, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM staff ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Staff
	for rows.Next() {
		var st Staff
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpsertStaff(ctx context.Context, id int64, name, code string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO staff (id, name, mgmt_code) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, mgmt_code = excluded.mgmt_code`),
		id, name, code,
	)
	return err
}

// AddLog appends an activity-log entry and prunes everything beyond the
// newest 200 in the same transaction.
func (s *sqlStore) AddLog(ctx context.Context, event, message string) (*LogEntry, error) {
	if event == "" || message == "" {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	var id int64
	if s.backend == backendPostgres {
		err = tx.QueryRowContext(ctx,
			s.rebind(`INSERT INTO logs (event, message, created_at) VALUES (?, ?, ?) RETURNING id`),
			event, message, now,
		).Scan(&id)
		if err != nil {
			return nil, err
		}
	} else {
		res, execErr := tx.ExecContext(ctx,
			`INSERT INTO logs (event, message, created_at) VALUES (?, ?, ?)`,
			event, message, now,
		)
		if execErr != nil {
			return nil, execErr
		}
		id, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, s.rebind(fmt.Sprintf(
		`DELETE FROM logs WHERE id NOT IN (
  SELECT id FROM logs ORDER BY created_at DESC, id DESC LIMIT %d
)`, logRetention)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &LogEntry{ID: id, Event: event, Message: message, CreatedAt: now}, nil
}

func (s *sqlStore) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > logRetention {
		limit = logRetention
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, event, message, created_at FROM logs ORDER BY created_at DESC, id DESC LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Event, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SubmitScore records a reaction/twenty result, keeping only personal
// bests (lower is better for both). RPG rows are owned by
// SavePlayerState and always overwritten there.
func (s *sqlStore) SubmitScore(ctx context.Context, game string, staffID, value, extra int64) (bool, error) {
	var existing sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT value FROM game_scores WHERE game = ? AND staff_id = ?`),
		game, staffID,
	).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if err == nil && existing.Valid && game != gameRPG && value >= existing.Int64 {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO game_scores (game, staff_id, value, extra, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (game, staff_id) DO UPDATE SET
  value = excluded.value,
  extra = excluded.extra,
  updated_at = CURRENT_TIMESTAMP`),
		game, staffID, value, extra,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqlStore) TopScores(ctx context.Context, game string, limit int) ([]ScoreRow, error) {
	if limit <= 0 {
		limit = 50
	}
	order := "ASC"
	if game == gameRPG {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT g.staff_id, s.name, g.value, g.extra
FROM game_scores g JOIN staff s ON s.id = g.staff_id
WHERE g.game = ? ORDER BY g.value %s LIMIT ?`, order)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), game, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoreRow
	for rows.Next() {
		var r ScoreRow
		if err := rows.Scan(&r.StaffID, &r.Name, &r.Value, &r.Extra); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) BossKillRanking(ctx context.Context, limit int) ([]BossKillRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT g.staff_id, s.name, g.meta
FROM game_scores g JOIN staff s ON s.id = g.staff_id
WHERE g.game = ?`), gameRPG)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BossKillRow
	for rows.Next() {
		var (
			row  BossKillRow
			meta sql.NullString
		)
		if err := rows.Scan(&row.StaffID, &row.Name, &meta); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			var st PlayerState
			if err := json.Unmarshal([]byte(meta.String), &st); err == nil {
				row.BossKills = st.BossVictories
				if st.LegacyBossDefeated != nil && *st.LegacyBossDefeated && row.BossKills == 0 {
					row.BossKills = 1
				}
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BossKills > out[j].BossKills })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
