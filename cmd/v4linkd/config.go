package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/v4link/internal/config"
)

type fileConfig struct {
	Name        string   `toml:"name"`
	Transport   string   `toml:"transport"`
	ListenAddr  string   `toml:"listen_addr"`
	AdminAddr   string   `toml:"admin_addr"`
	CorsOrigins []string `toml:"cors_origins"`
	Capacity    int      `toml:"capacity"`
	JournalPath string   `toml:"journal_path"`
	Serial      struct {
		Port     string `toml:"port"`
		BaudRate int    `toml:"baud_rate"`
	} `toml:"serial"`
	VM struct {
		MemorySize  int `toml:"memory_size"`
		DataStack   int `toml:"data_stack"`
		ReturnStack int `toml:"return_stack"`
		MaxSteps    int `toml:"max_steps"`
	} `toml:"vm"`
}

// loadDaemonConfig overlays the keys present in path onto the defaults.
// An empty path returns the defaults.
func loadDaemonConfig(path string) (config.DaemonConfig, error) {
	cfg := config.DefaultDaemonConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.DaemonConfig{}, fmt.Errorf("load v4linkd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.DaemonConfig{}, fmt.Errorf("load v4linkd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("capacity") {
		cfg.Capacity = raw.Capacity
	}
	if meta.IsDefined("journal_path") {
		cfg.JournalPath = strings.TrimSpace(raw.JournalPath)
	}
	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud_rate") {
		cfg.Serial.BaudRate = raw.Serial.BaudRate
	}
	if meta.IsDefined("vm", "memory_size") {
		cfg.VM.MemorySize = raw.VM.MemorySize
	}
	if meta.IsDefined("vm", "data_stack") {
		cfg.VM.DataStack = raw.VM.DataStack
	}
	if meta.IsDefined("vm", "return_stack") {
		cfg.VM.ReturnStack = raw.VM.ReturnStack
	}
	if meta.IsDefined("vm", "max_steps") {
		cfg.VM.MaxSteps = raw.VM.MaxSteps
	}

	if err := config.ValidateDaemonConfig(cfg); err != nil {
		return config.DaemonConfig{}, err
	}
	return cfg, nil
}
