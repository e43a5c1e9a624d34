package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

const (
	rpgLevelKey = "rpg:level"
	rpgGoldKey  = "rpg:gold"
)

// leaderboard mirrors the two rpg ranking scalars into redis sorted
// sets so ranking reads stay off the relational store. Entirely
// optional: with no PA_REDIS_ADDR every method is a no-op and ranking
// queries fall back to SQL.
type leaderboard struct {
	client *redis.Client
}

func newLeaderboard() *leaderboard {
	addr := strings.TrimSpace(os.Getenv("PA_REDIS_ADDR"))
	if addr == "" {
		return &leaderboard{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("Redis unavailable at %s, leaderboard mirror disabled: %v", addr, err)
		_ = client.Close()
		return &leaderboard{}
	}
	log.Printf("Leaderboard mirror enabled (redis %s)", addr)
	return &leaderboard{client: client}
}

func (l *leaderboard) enabled() bool { return l != nil && l.client != nil }

// recordRPG is best-effort: a mirror failure is logged and the request
// proceeds, the SQL columns remain authoritative.
func (l *leaderboard) recordRPG(ctx context.Context, staffID int64, level int, gold int64) {
	if !l.enabled() {
		return
	}
	member := strconv.FormatInt(staffID, 10)
	if gold > maxGoldColumn {
		gold = maxGoldColumn
	}
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, rpgLevelKey, &redis.Z{Score: float64(level), Member: member})
	pipe.ZAdd(ctx, rpgGoldKey, &redis.Z{Score: float64(gold), Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Failed to mirror rpg ranking for staff %d: %v", staffID, err)
	}
}

// topRPG returns staff ids with level and gold scores, highest level
// first, or ok=false when the mirror cannot serve the query. Gold comes
// from the second sorted set so the rows match the SQL columns.
func (l *leaderboard) topRPG(ctx context.Context, limit int) ([]ScoreRow, bool) {
	if !l.enabled() {
		return nil, false
	}
	if limit <= 0 {
		limit = 50
	}
	zs, err := l.client.ZRevRangeWithScores(ctx, rpgLevelKey, 0, int64(limit-1)).Result()
	if err != nil {
		log.Printf("Redis ranking read failed, falling back to SQL: %v", err)
		return nil, false
	}
	rows := make([]ScoreRow, 0, len(zs))
	members := make([]string, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		rows = append(rows, ScoreRow{StaffID: id, Value: int64(z.Score)})
		members = append(members, member)
	}
	if len(members) > 0 {
		golds, err := l.client.ZMScore(ctx, rpgGoldKey, members...).Result()
		if err != nil {
			log.Printf("Redis gold read failed, falling back to SQL: %v", err)
			return nil, false
		}
		for i := range rows {
			rows[i].Extra = int64(golds[i])
		}
	}
	return rows, true
}

func (l *leaderboard) close() {
	if l.enabled() {
		_ = l.client.Close()
	}
}
