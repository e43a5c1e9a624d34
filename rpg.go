package main

import (
	"fmt"
	"math"
	"math/rand"
)

// Rand is the engine's only source of nondeterminism. Tests inject a
// scripted implementation to pin battle outcomes.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type globalRand struct{}

func (globalRand) Intn(n int) int   { return rand.Intn(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// Engine resolves every RPG action against an owned PlayerState copy.
// It holds no mutable state of its own: config in, new state out.
type Engine struct {
	cfg *GameConfig
	rng Rand
}

func NewEngine(cfg *GameConfig, rng Rand) *Engine {
	if cfg == nil {
		cfg = DefaultGameConfig()
	}
	if rng == nil {
		rng = globalRand{}
	}
	return &Engine{cfg: cfg, rng: rng}
}

func (e *Engine) Config() *GameConfig { return e.cfg }

// RecomputeDerived refreshes MaxHP/Atk/NextExp from level + equipment.
// Armor hp bonuses stack additively; only the single best-owned weapon
// counts. HP is clamped down to the new MaxHP, never healed up.
func (e *Engine) RecomputeDerived(st *PlayerState) {
	lvl := int64(st.Level)
	var armorBonus, weaponBonus int64
	for _, key := range st.Equipment {
		if item, ok := e.cfg.ShopItems[key]; ok {
			armorBonus += item.HPBonus
		}
		if bonus, ok := e.cfg.WeaponBonus[key]; ok && bonus > weaponBonus {
			weaponBonus = bonus
		}
	}
	st.MaxHP = e.cfg.BaseHP + (lvl-1)*e.cfg.Leveling.HPPerLevel + armorBonus
	st.Atk = e.cfg.BaseAtk + (lvl-1)*e.cfg.Leveling.AtkPerLevel + weaponBonus
	if st.HP > st.MaxHP {
		st.HP = st.MaxHP
	}
	st.NextExp = e.ExperienceRequired(st.Level)
}

// ExperienceRequired is the exp needed to advance from level to
// level+1. Non-decreasing in level for any non-negative constants.
func (e *Engine) ExperienceRequired(level int) int64 {
	if level < 1 {
		level = 1
	}
	ls := e.cfg.Leveling
	quad := int64(math.Floor(float64(level) * float64(level) * ls.ExpQuad))
	return ls.ExpBase + int64(level-1)*ls.ExpPerLevel + quad
}

type Enemy struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Level int64  `json:"level"`
	HP    int64  `json:"hp"`
	Atk   int64  `json:"atk"`
	Exp   int64  `json:"exp"`
	Gold  int64  `json:"gold"`
}

// SpawnEnemy rolls a regular-battle enemy near the player's level:
// level jitter of -10..+10 (floored at 1), species uniform over the
// roster, and an independent 0.9..1.1 variance factor per stat.
func (e *Engine) SpawnEnemy(playerLevel int) Enemy {
	level := int64(playerLevel + e.rng.Intn(21) - 10)
	if level < 1 {
		level = 1
	}
	species := e.cfg.Enemies[e.rng.Intn(len(e.cfg.Enemies))]
	sc := e.cfg.EnemyScaling
	return Enemy{
		Key:   species.Key,
		Name:  species.Name,
		Level: level,
		HP:    e.vary(sc.HPBase + sc.HPPerLevel*level),
		Atk:   e.vary(sc.AtkBase + sc.AtkPerLevel*level),
		Exp:   e.vary(sc.ExpBase + sc.ExpPerLevel*level),
		Gold:  e.vary(sc.GoldBase + sc.GoldPerLevel*level),
	}
}

func (e *Engine) vary(base int64) int64 {
	factor := 0.9 + e.rng.Float64()*0.2
	v := int64(math.Round(float64(base) * factor))
	if v < 1 {
		v = 1
	}
	return v
}

func (e *Engine) BossEnemy() Enemy {
	boss := e.cfg.BossOrDefault()
	return Enemy{
		Key:   boss.SpriteKey,
		Name:  boss.Name,
		Level: boss.Level,
		HP:    boss.HP,
		Atk:   boss.Atk,
		Exp:   boss.Exp,
		Gold:  boss.Gold,
	}
}

type BattleEvent struct {
	Actor    string `json:"actor"` // "player" or "enemy"
	Damage   int64  `json:"damage"`
	PlayerHP int64  `json:"playerHp"`
	EnemyHP  int64  `json:"enemyHp"`
}

type DefeatDetail struct {
	HPBefore      int64    `json:"hpBefore"`
	HPAfter       int64    `json:"hpAfter"`
	EnemyHPAfter  int64    `json:"enemyHpAfter"`
	LevelBefore   int      `json:"levelBefore"`
	LevelAfter    int      `json:"levelAfter"`
	GoldBefore    int64    `json:"goldBefore"`
	GoldLost      int64    `json:"goldLost"`
	EquipmentLost []string `json:"equipmentLost"`
}

// BattleResult carries the full turn log so the client can animate the
// fight from one response without re-simulating anything.
type BattleResult struct {
	Victory  bool          `json:"victory"`
	Enemy    Enemy         `json:"enemy"`
	Events   []BattleEvent `json:"events"`
	GoldGain int64         `json:"goldGain,omitempty"`
	ExpGain  int64         `json:"expGain,omitempty"`
	LevelUps []int         `json:"levelUps,omitempty"`
	Defeat   *DefeatDetail `json:"defeat,omitempty"`
	Message  string        `json:"msg"`
}

// ResolveBattle runs the whole fight synchronously. The player strikes
// first every round; a killing blow ends the round before the enemy's
// counterattack.
//
// Defeat is punishing but never terminal: level halved (min 1), exp
// zeroed, gold halved, all equipment lost, then fully healed so the
// player is always left in a playable state.
func (e *Engine) ResolveBattle(st *PlayerState, enemy Enemy) *BattleResult {
	hpBefore := st.HP
	levelBefore := st.Level
	goldBefore := st.Gold

	var events []BattleEvent
	for st.HP > 0 && enemy.HP > 0 {
		enemy.HP -= st.Atk
		events = append(events, BattleEvent{Actor: "player", Damage: st.Atk, PlayerHP: floor0(st.HP), EnemyHP: floor0(enemy.HP)})
		if enemy.HP <= 0 {
			break
		}
		st.HP -= enemy.Atk
		events = append(events, BattleEvent{Actor: "enemy", Damage: enemy.Atk, PlayerHP: floor0(st.HP), EnemyHP: floor0(enemy.HP)})
	}

	if st.HP <= 0 {
		detail := &DefeatDetail{
			HPBefore:      hpBefore,
			EnemyHPAfter:  floor0(enemy.HP),
			LevelBefore:   levelBefore,
			GoldBefore:    goldBefore,
			GoldLost:      goldBefore - goldBefore/2,
			EquipmentLost: st.Equipment,
		}
		st.Level = st.Level / 2
		if st.Level < 1 {
			st.Level = 1
		}
		st.Exp = 0
		st.Gold = goldBefore / 2
		st.Equipment = []string{}
		e.RecomputeDerived(st)
		st.HP = st.MaxHP
		detail.HPAfter = st.HP
		detail.LevelAfter = st.Level
		return &BattleResult{
			Victory: false,
			Enemy:   enemy,
			Events:  events,
			Defeat:  detail,
			Message: fmt.Sprintf("Defeated by %s... lost %dG and all equipment", enemy.Name, detail.GoldLost),
		}
	}

	st.Gold += enemy.Gold
	st.Exp += enemy.Exp
	ups := e.applyLevelUps(st)
	return &BattleResult{
		Victory:  true,
		Enemy:    enemy,
		Events:   events,
		GoldGain: enemy.Gold,
		ExpGain:  enemy.Exp,
		LevelUps: ups,
		Message:  fmt.Sprintf("Defeated %s! +%dG +%dEXP", enemy.Name, enemy.Gold, enemy.Exp),
	}
}

// FightBoss resolves a fixed-stat boss battle. The boss is a repeatable
// grind target: no already-defeated gating, each win bumps the counter.
func (e *Engine) FightBoss(st *PlayerState) *BattleResult {
	result := e.ResolveBattle(st, e.BossEnemy())
	if result.Victory {
		st.BossVictories++
	}
	return result
}

// applyLevelUps consumes experience while it covers the next threshold,
// fully healing on each level gained. Remainder exp is carried, not
// discarded.
func (e *Engine) applyLevelUps(st *PlayerState) []int {
	var ups []int
	for st.Exp >= e.ExperienceRequired(st.Level) {
		st.Exp -= e.ExperienceRequired(st.Level)
		st.Level++
		e.RecomputeDerived(st)
		st.HP = st.MaxHP
		ups = append(ups, st.Level)
	}
	e.RecomputeDerived(st)
	return ups
}

// ActionResult is the outcome of a non-battle action. Business-rule
// failures (not enough gold, already owned, empty chest) come back as
// OK=false values with a message and zero state mutation; they are
// never errors.
type ActionResult struct {
	OK       bool          `json:"ok"`
	Message  string        `json:"msg"`
	Battle   *BattleResult `json:"battle,omitempty"`
	GoldGain int64         `json:"goldGain,omitempty"`
	ExpGain  int64         `json:"expGain,omitempty"`
	LevelUps []int         `json:"levelUps,omitempty"`
}

// BuyItem purchases a shop item at most once. An hp-bonus purchase
// fully heals on top of the recompute.
func (e *Engine) BuyItem(st *PlayerState, key string) ActionResult {
	item, ok := e.cfg.ShopItems[key]
	if !ok {
		return ActionResult{OK: false, Message: "unknown item"}
	}
	if st.Owns(key) {
		return ActionResult{OK: false, Message: "already owned"}
	}
	if st.Gold < item.Cost {
		return ActionResult{OK: false, Message: fmt.Sprintf("not enough gold (%dG required)", item.Cost)}
	}
	st.Gold -= item.Cost
	st.Equipment = append(st.Equipment, key)
	e.RecomputeDerived(st)
	if item.HPBonus > 0 {
		st.HP = st.MaxHP
	}
	msg := item.Message
	if msg == "" {
		msg = fmt.Sprintf("Bought %s", key)
	}
	return ActionResult{OK: true, Message: msg}
}

// Rest charges 10% of current gold (floored, minimum 1G) and fully
// heals. With zero gold the inn turns the player away.
func (e *Engine) Rest(st *PlayerState) ActionResult {
	if st.Gold <= 0 {
		return ActionResult{OK: false, Message: "not enough gold"}
	}
	cost := st.Gold / 10
	if cost < 1 {
		cost = 1
	}
	st.Gold -= cost
	st.HP = st.MaxHP
	return ActionResult{OK: true, Message: fmt.Sprintf("Rested at the inn (-%dG)", cost)}
}

// OpenChest claims the unopened chest at (x, y), if any. Reopening is
// idempotent: the chest stays flagged and yields nothing.
func (e *Engine) OpenChest(st *PlayerState, x, y int) ActionResult {
	for i := range st.Items {
		item := &st.Items[i]
		if item.Kind != "chest" || item.X != x || item.Y != y {
			continue
		}
		if item.Opened {
			return ActionResult{OK: false, Message: "the chest is empty"}
		}
		item.Opened = true
		st.Gold += item.Reward.Gold
		var ups []int
		if item.Reward.Exp > 0 {
			st.Exp += item.Reward.Exp
			ups = e.applyLevelUps(st)
		}
		msg := fmt.Sprintf("Opened a chest! +%dG", item.Reward.Gold)
		if item.Reward.Exp > 0 {
			msg += fmt.Sprintf(" +%dEXP", item.Reward.Exp)
		}
		return ActionResult{
			OK:       true,
			Message:  msg,
			GoldGain: item.Reward.Gold,
			ExpGain:  item.Reward.Exp,
			LevelUps: ups,
		}
	}
	return ActionResult{OK: false, Message: "nothing here"}
}

func floor0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
