package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

var (
	ErrNoPort      = errors.New("transport: serial port name is required")
	ErrReadTimeout = errors.New("transport: serial read timeout")
)

// SerialConfig selects a UART and its line settings. The link itself is
// always 8N1.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{BaudRate: 115200}
}

// SerialPort adapts a serial.Port to the io.ReadWriteCloser plus SetDeadline
// shape the host client and device pump expect.
type SerialPort struct {
	port    serial.Port
	name    string
	timeout time.Duration
}

// OpenSerial opens cfg.Port at cfg.BaudRate, 8N1.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	name := strings.TrimSpace(cfg.Port)
	if name == "" {
		return nil, ErrNoPort
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultSerialConfig().BaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	p := &SerialPort{port: port, name: name}
	if err := p.setTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return p, nil
}

// ListSerialPorts returns the port names the OS reports.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}
	return ports, nil
}

func (p *SerialPort) Name() string { return p.name }

// Read returns ErrReadTimeout when a read timeout is set and no byte arrived.
func (p *SerialPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == nil && p.timeout > 0 {
		return 0, ErrReadTimeout
	}
	return n, err
}

func (p *SerialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *SerialPort) Close() error {
	return p.port.Close()
}

// SetDeadline maps an absolute deadline onto the port's read timeout. A zero
// deadline blocks indefinitely.
func (p *SerialPort) SetDeadline(t time.Time) error {
	if t.IsZero() {
		return p.setTimeout(0)
	}
	d := time.Until(t)
	if d <= 0 {
		d = time.Millisecond
	}
	return p.setTimeout(d)
}

func (p *SerialPort) setTimeout(d time.Duration) error {
	timeout := serial.NoTimeout
	if d > 0 {
		timeout = d
	}
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("transport: set read timeout on %s: %w", p.name, err)
	}
	p.timeout = d
	return nil
}
