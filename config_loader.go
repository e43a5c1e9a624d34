package main

import (
	"encoding/json"
	"os"
)

type StaffSeed struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"mgmt_code"`
}

type ServerConfig struct {
	ServerName     string      `json:"server_name"`
	ListenPort     int         `json:"listen_port"`
	SQLitePath     string      `json:"sqlite_path"`
	GameConfigPath string      `json:"game_config_path"`
	Staff          []StaffSeed `json:"staff"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ServerName:     "PA Manager Game Server",
		ListenPort:     8090,
		SQLitePath:     "data/gameserver.db",
		GameConfigPath: "rpg_config.json",
	}
}

func loadServerConfig(path string) ServerConfig {
	cfg := defaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaultServerConfig()
	}

	if cfg.ServerName == "" {
		cfg.ServerName = "PA Manager Game Server"
	}
	if cfg.ListenPort <= 0 {
		cfg.ListenPort = 8090
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "data/gameserver.db"
	}
	if cfg.GameConfigPath == "" {
		cfg.GameConfigPath = "rpg_config.json"
	}

	return cfg
}
