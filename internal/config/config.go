package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/v4link/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
	TransportStdio  = "stdio"
)

var ErrInvalidConfig = errors.New("config: invalid")

// DaemonConfig configures the v4linkd device simulator.
type DaemonConfig struct {
	Name        string       `toml:"name"`
	Transport   string       `toml:"transport"`
	ListenAddr  string       `toml:"listen_addr"`
	AdminAddr   string       `toml:"admin_addr"`
	CorsOrigins []string     `toml:"cors_origins"`
	Capacity    int          `toml:"capacity"`
	JournalPath string       `toml:"journal_path"`
	Serial      SerialConfig `toml:"serial"`
	VM          VMConfig     `toml:"vm"`
}

type SerialConfig struct {
	Port     string `toml:"port"`
	BaudRate int    `toml:"baud_rate"`
}

type VMConfig struct {
	MemorySize  int `toml:"memory_size"`
	DataStack   int `toml:"data_stack"`
	ReturnStack int `toml:"return_stack"`
	MaxSteps    int `toml:"max_steps"`
}

func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Name:        "v4linkd",
		Transport:   TransportTCP,
		ListenAddr:  "127.0.0.1:7400",
		AdminAddr:   "127.0.0.1:7401",
		CorsOrigins: []string{"http://localhost:3000"},
		Capacity:    protocol.MaxPayloadSize,
		Serial:      SerialConfig{BaudRate: 115200},
		VM: VMConfig{
			MemorySize:  64 * 1024,
			DataStack:   256,
			ReturnStack: 64,
			MaxSteps:    1_000_000,
		},
	}
}

// LoadDaemonConfig reads path over DefaultDaemonConfig and validates the result.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: daemon config missing name", ErrInvalidConfig)
	}
	if cfg.Capacity < 1 || cfg.Capacity > protocol.MaxPayloadSize {
		return fmt.Errorf("%w: capacity %d not in 1..%d", ErrInvalidConfig, cfg.Capacity, protocol.MaxPayloadSize)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case TransportTCP:
		if strings.TrimSpace(cfg.ListenAddr) == "" {
			return fmt.Errorf("%w: tcp transport requires listen_addr", ErrInvalidConfig)
		}
	case TransportSerial:
		if strings.TrimSpace(cfg.Serial.Port) == "" {
			return fmt.Errorf("%w: serial transport requires serial.port", ErrInvalidConfig)
		}
		if cfg.Serial.BaudRate <= 0 {
			return fmt.Errorf("%w: serial.baud_rate must be positive", ErrInvalidConfig)
		}
	case TransportStdio:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, cfg.Transport)
	}
	if cfg.VM.MemorySize < 0 || cfg.VM.DataStack < 0 || cfg.VM.ReturnStack < 0 || cfg.VM.MaxSteps < 0 {
		return fmt.Errorf("%w: vm sizes must not be negative", ErrInvalidConfig)
	}
	return nil
}
