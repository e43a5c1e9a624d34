package main

import (
	"encoding/json"
	"log"
	"os"
)

// GameConfig is static tuning data for the RPG: leveling curve, enemy
// roster, shop catalog and boss stats. It is loaded once at startup and
// passed into the engine; nothing mutates it afterwards.
type GameConfig struct {
	BaseHP  int64 `json:"base_hp"`
	BaseAtk int64 `json:"base_atk"`

	Leveling     LevelScaling        `json:"leveling"`
	Enemies      []EnemySpecies      `json:"enemies"`
	EnemyScaling EnemyScaling        `json:"enemy_scaling"`
	ShopItems    map[string]ShopItem `json:"shop_items"`
	WeaponBonus  map[string]int64    `json:"weapon_bonus"`
	Boss         *BossConfig         `json:"boss"`
	ChestSeeds   []WorldItem         `json:"chest_seeds"`
}

type LevelScaling struct {
	HPPerLevel  int64   `json:"hp_per_level"`
	AtkPerLevel int64   `json:"atk_per_level"`
	ExpBase     int64   `json:"exp_base"`
	ExpPerLevel int64   `json:"exp_per_level"`
	ExpQuad     float64 `json:"exp_quadratic"`
}

type EnemySpecies struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// EnemyScaling drives regular-battle enemy stats: each stat is
// base + per_level * enemyLevel before the random variance factor.
type EnemyScaling struct {
	HPBase       int64 `json:"hp_base"`
	HPPerLevel   int64 `json:"hp_per_level"`
	AtkBase      int64 `json:"atk_base"`
	AtkPerLevel  int64 `json:"atk_per_level"`
	ExpBase      int64 `json:"exp_base"`
	ExpPerLevel  int64 `json:"exp_per_level"`
	GoldBase     int64 `json:"gold_base"`
	GoldPerLevel int64 `json:"gold_per_level"`
}

// ShopItem grants an attack bonus or an hp bonus. The observed catalog
// never sets both, but both fields are allowed.
type ShopItem struct {
	Cost     int64  `json:"cost"`
	Message  string `json:"msg"`
	AtkBonus int64  `json:"atk,omitempty"`
	HPBonus  int64  `json:"hp,omitempty"`
}

type BossConfig struct {
	Level     int64  `json:"level"`
	HP        int64  `json:"hp"`
	Atk       int64  `json:"atk"`
	Exp       int64  `json:"exp"`
	Gold      int64  `json:"gold"`
	Name      string `json:"name"`
	SpriteKey string `json:"sprite_key"`
}

// Fallback boss used when the boss sub-config is missing or partial.
// A broken config should never fail a boss request.
var defaultBoss = BossConfig{
	Level:     1,
	HP:        50,
	Atk:       5,
	Exp:       20,
	Gold:      30,
	Name:      "Dungeon Boss",
	SpriteKey: "big_demon",
}

// BossOrDefault resolves the configured boss, filling any missing or
// non-positive field from the defaults.
func (cfg *GameConfig) BossOrDefault() BossConfig {
	if cfg.Boss == nil {
		return defaultBoss
	}
	b := *cfg.Boss
	if b.Level <= 0 {
		b.Level = defaultBoss.Level
	}
	if b.HP <= 0 {
		b.HP = defaultBoss.HP
	}
	if b.Atk <= 0 {
		b.Atk = defaultBoss.Atk
	}
	if b.Exp <= 0 {
		b.Exp = defaultBoss.Exp
	}
	if b.Gold <= 0 {
		b.Gold = defaultBoss.Gold
	}
	if b.Name == "" {
		b.Name = defaultBoss.Name
	}
	if b.SpriteKey == "" {
		b.SpriteKey = defaultBoss.SpriteKey
	}
	return b
}

func DefaultGameConfig() *GameConfig {
	return &GameConfig{
		BaseHP:  30,
		BaseAtk: 5,
		Leveling: LevelScaling{
			HPPerLevel:  6,
			AtkPerLevel: 2,
			ExpBase:     20,
			ExpPerLevel: 15,
			ExpQuad:     0.5,
		},
		Enemies: []EnemySpecies{
			{Key: "chort", Name: "Imp"},
			{Key: "big_zombie", Name: "Zombie"},
			{Key: "doc", Name: "Plague Doctor"},
			{Key: "big_demon", Name: "Arch Demon"},
			{Key: "angel", Name: "Fallen Angel"},
		},
		EnemyScaling: EnemyScaling{
			HPBase:       12,
			HPPerLevel:   6,
			AtkBase:      3,
			AtkPerLevel:  2,
			ExpBase:      8,
			ExpPerLevel:  3,
			GoldBase:     6,
			GoldPerLevel: 2,
		},
		ShopItems: map[string]ShopItem{
			"dagger":       {Cost: 700, Message: "Bought a dagger (+ATK40)", AtkBonus: 40},
			"sword":        {Cost: 6000, Message: "Bought a sword (+ATK500)", AtkBonus: 500},
			"staff":        {Cost: 50000, Message: "Bought a staff (+ATK7000)", AtkBonus: 7000},
			"axe":          {Cost: 400000, Message: "Bought a war axe (+ATK90000)", AtkBonus: 90000},
			"spear":        {Cost: 3000000, Message: "Bought a spear (+ATK1200000)", AtkBonus: 1200000},
			"wand":         {Cost: 20000000, Message: "Bought a wand (+ATK15000000)", AtkBonus: 15000000},
			"longsword":    {Cost: 100000000, Message: "Bought a longsword (+ATK180000000)", AtkBonus: 180000000},
			"mystic_staff": {Cost: 1000000000, Message: "Bought a mystic staff (+ATK2400000000)", AtkBonus: 2400000000},
			"greatsword":   {Cost: 10000000000, Message: "Bought a greatsword (+ATK50000000000)", AtkBonus: 50000000000},
			"armor":        {Cost: 114514, Message: "Bought armor (+HP114514)", HPBonus: 114514},
			"plate_armor":  {Cost: 37564000, Message: "Bought plate armor (+HP37564000)", HPBonus: 37564000},
		},
		WeaponBonus: map[string]int64{
			"dagger":       40,
			"sword":        500,
			"staff":        7000,
			"axe":          80000,
			"spear":        90000,
			"wand":         15000000,
			"longsword":    180000000,
			"mystic_staff": 2400000000,
			"greatsword":   50000000000,
		},
		Boss: &BossConfig{
			Level:     100000000,
			HP:        12000000000,
			Atk:       140000,
			Exp:       60000000000000,
			Gold:      1200000000000,
			Name:      "Demon King of the Southern Rift",
			SpriteKey: "angel",
		},
		ChestSeeds: []WorldItem{
			{Kind: "chest", X: 7, Y: 3, Reward: ChestReward{Gold: 30, Exp: 10}},
			{Kind: "chest", X: 10, Y: 7, Reward: ChestReward{Gold: 50, Exp: 0}},
		},
	}
}

// loadGameConfig reads tuning overrides from path. Any read or parse
// failure falls back to the built-in defaults so a bad deploy cannot
// take the games down. The file is an overlay on the defaults: map
// sections (shop_items, weapon_bonus) merge key by key, so one price
// can be tweaked without restating the whole catalog; slices and
// scalars replace wholesale when present.
func loadGameConfig(path string) *GameConfig {
	cfg := DefaultGameConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	loaded := DefaultGameConfig()
	if err := json.Unmarshal(data, loaded); err != nil {
		log.Printf("Invalid game config %s, using defaults: %v", path, err)
		return cfg
	}
	if loaded.BaseHP <= 0 {
		loaded.BaseHP = cfg.BaseHP
	}
	if loaded.BaseAtk <= 0 {
		loaded.BaseAtk = cfg.BaseAtk
	}
	if len(loaded.Enemies) == 0 {
		loaded.Enemies = cfg.Enemies
	}
	return loaded
}
