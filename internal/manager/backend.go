package manager

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/hoppxi/wigo-brightness/internal/config"
	"github.com/hoppxi/wigo-brightness/pkg/brightness"
	"github.com/rs/zerolog/log"
)

// BusConn is a bus connection owned by a Session.
type BusConn interface {
	brightness.Conn
	Close() error
}

// Connector opens bus connections.
type Connector struct {
	Session func() (BusConn, error)
	System  func() (BusConn, error)
}

// DefaultConnector opens dedicated connections, so closing them does not
// affect the shared bus connections of the process.
var DefaultConnector = Connector{
	Session: connect(dbus.ConnectSessionBus),
	System:  connect(dbus.ConnectSystemBus),
}

func connect(open func(opts ...dbus.ConnOption) (*dbus.Conn, error)) func() (BusConn, error) {
	return func() (BusConn, error) {
		conn, err := open()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Session is an open backend together with the connections it uses.
type Session struct {
	Backend brightness.Backend
	conns   []BusConn
}

// Close cleans up the backend, then closes its connections.
func (s *Session) Close() {
	if s.Backend != nil {
		s.Backend.CleanUp()
	}
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

// OpenBackend opens the backend selected by cfg.Backend. "auto" prefers the
// GNOME settings daemon and falls back to sysfs when it is not reachable.
func (c Connector) OpenBackend(cfg config.Config) (*Session, error) {
	switch cfg.Backend {
	case config.BackendGnome:
		return c.openGnome()
	case config.BackendSysfs:
		return c.openSysfs(cfg.Sysfs.Path), nil
	case config.BackendAuto:
		s, err := c.openGnome()
		if err == nil && s.Backend.IsAvailable() {
			return s, nil
		}
		if err != nil {
			log.Debug().Err(err).Msg("session bus unavailable")
		} else {
			log.Debug().Msg("gnome settings daemon not available, falling back to sysfs")
			s.Close()
		}
		return c.openSysfs(cfg.Sysfs.Path), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func (c Connector) openGnome() (*Session, error) {
	conn, err := c.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Session{
		Backend: brightness.NewGnome(conn),
		conns:   []BusConn{conn},
	}, nil
}

// openSysfs never fails: without a system bus the backend can still read.
func (c Connector) openSysfs(path string) *Session {
	s := &Session{}
	var conn brightness.Conn
	if sys, err := c.System(); err != nil {
		log.Warn().Err(err).Msg("failed to connect to system bus, brightness will be read-only")
	} else {
		conn = sys
		s.conns = append(s.conns, sys)
	}
	s.Backend = brightness.NewSysfs(conn, path)
	return s
}
