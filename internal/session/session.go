package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrPoolExhausted reports that every port in the pool is taken
var ErrPoolExhausted = errors.New("all ports in the pool are in use")

// Session is one active editor instance: the port it listens on and the
// projects root it serves
type Session struct {
	Port int    `json:"port"`
	Root string `json:"root"`
}

// probeTimeout bounds the TCP connect used to decide whether a port is
// still alive; a stale lock entry must not stall startup.
const probeTimeout = 250 * time.Millisecond

// Manager tracks active editor instances through a shared JSON lock file
// keyed by port. The file is advisory: entries whose port no longer accepts
// a connection are dropped on every load, so a crashed instance never
// blocks its port forever.
type Manager struct {
	lockPath string
	logger   *zap.Logger
}

// NewManager creates a session manager over the given lock file path
func NewManager(lockPath string) *Manager {
	return NewManagerWithLogger(lockPath, zap.NewNop())
}

// NewManagerWithLogger creates a session manager with a custom logger
func NewManagerWithLogger(lockPath string, logger *zap.Logger) *Manager {
	return &Manager{lockPath: lockPath, logger: logger}
}

// Load reads the lock file leniently: a missing or corrupt file is an
// empty session set, never an error
func (m *Manager) Load() map[int]string {
	data, err := os.ReadFile(m.lockPath)
	if err != nil {
		return map[int]string{}
	}
	raw := make(map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		m.logger.Warn("discarding corrupt session lock file",
			zap.String("path", m.lockPath),
			zap.Error(err))
		return map[int]string{}
	}
	sessions := make(map[int]string, len(raw))
	for portStr, root := range raw {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		sessions[port] = root
	}
	return sessions
}

// Save writes the session set back to the lock file
func (m *Manager) Save(sessions map[int]string) error {
	raw := make(map[string]string, len(sessions))
	for port, root := range sessions {
		raw[strconv.Itoa(port)] = root
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	if err := os.WriteFile(m.lockPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session lock file: %w", err)
	}
	return nil
}

// CleanupStale drops entries whose port no longer accepts a connection
func (m *Manager) CleanupStale(sessions map[int]string) map[int]string {
	active := make(map[int]string, len(sessions))
	for port, root := range sessions {
		if portInUse(port) {
			active[port] = root
		}
	}
	return active
}

// FindAvailablePort returns the first pool port that is neither registered
// nor answering connections
func (m *Manager) FindAvailablePort(pool []int, sessions map[int]string) (int, error) {
	for _, port := range pool {
		if _, taken := sessions[port]; taken {
			continue
		}
		if portInUse(port) {
			continue
		}
		return port, nil
	}
	return 0, fmt.Errorf("%w (pool size %d)", ErrPoolExhausted, len(pool))
}

// Register records a running instance in the lock file, clearing stale
// entries first
func (m *Manager) Register(port int, root string) error {
	sessions := m.CleanupStale(m.Load())
	sessions[port] = root
	if err := m.Save(sessions); err != nil {
		return err
	}
	m.logger.Info("session registered",
		zap.Int("port", port),
		zap.String("root", root))
	return nil
}

// Release removes a port's entry from the lock file on shutdown
func (m *Manager) Release(port int) error {
	sessions := m.Load()
	if _, ok := sessions[port]; !ok {
		return nil
	}
	delete(sessions, port)
	if err := m.Save(sessions); err != nil {
		return err
	}
	m.logger.Info("session released", zap.Int("port", port))
	return nil
}

// List returns the live sessions sorted by port, dropping stale entries
func (m *Manager) List() []Session {
	sessions := m.CleanupStale(m.Load())
	list := make([]Session, 0, len(sessions))
	for port, root := range sessions {
		list = append(list, Session{Port: port, Root: root})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Port < list[j].Port })
	return list
}

// portInUse probes a local port with a short TCP connect
func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
