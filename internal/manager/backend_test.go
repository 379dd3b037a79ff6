package manager

import (
	"errors"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/hoppxi/wigo-brightness/internal/config"
	"github.com/hoppxi/wigo-brightness/pkg/brightness"
)

type stubObject struct {
	dbus.BusObject
	xml string
	err error
}

func (o *stubObject) Call(method string, flags dbus.Flags, args ...any) *dbus.Call {
	if o.err != nil {
		return &dbus.Call{Err: o.err}
	}
	return &dbus.Call{Body: []any{o.xml}}
}

func (o *stubObject) Path() dbus.ObjectPath {
	return brightness.GnomePath
}

type stubConn struct {
	obj *stubObject

	mu     sync.Mutex
	closed bool
}

func (c *stubConn) Object(dest string, path dbus.ObjectPath) dbus.BusObject { return c.obj }
func (c *stubConn) AddMatchSignal(options ...dbus.MatchOption) error { return nil }
func (c *stubConn) RemoveMatchSignal(options ...dbus.MatchOption) error { return nil }
func (c *stubConn) Signal(ch chan<- *dbus.Signal) {}
func (c *stubConn) RemoveSignal(ch chan<- *dbus.Signal) {}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

const powerXML = `<node><interface name="org.freedesktop.DBus.Properties"/></node>`

func connector(session, system *stubConn) Connector {
	open := func(c *stubConn) func() (BusConn, error) {
		return func() (BusConn, error) {
			if c == nil {
				return nil, errors.New("no bus")
			}
			return c, nil
		}
	}
	return Connector{Session: open(session), System: open(system)}
}

func withBackend(name string) config.Config {
	cfg := config.Defaults()
	cfg.Backend = name
	return cfg
}

func TestOpenBackend_AutoPrefersGnome(t *testing.T) {
	session := &stubConn{obj: &stubObject{xml: powerXML}}
	system := &stubConn{obj: &stubObject{}}

	s, err := connector(session, system).OpenBackend(withBackend(config.BackendAuto))
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	if _, ok := s.Backend.(*brightness.GnomeAdapter); !ok {
		t.Fatalf("expected gnome backend, got %T", s.Backend)
	}

	s.Close()
	if !session.isClosed() {
		t.Error("expected session bus to be closed")
	}
	if system.isClosed() {
		t.Error("system bus should never have been used")
	}
}

func TestOpenBackend_AutoFallsBackToSysfs(t *testing.T) {
	session := &stubConn{obj: &stubObject{err: errors.New("org.freedesktop.DBus.Error.ServiceUnknown")}}
	system := &stubConn{obj: &stubObject{}}

	s, err := connector(session, system).OpenBackend(withBackend(config.BackendAuto))
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	defer s.Close()

	if _, ok := s.Backend.(*brightness.SysfsBackend); !ok {
		t.Fatalf("expected sysfs backend, got %T", s.Backend)
	}
	if !session.isClosed() {
		t.Error("expected the unused session bus to be closed")
	}
}

func TestOpenBackend_AutoWithoutSessionBus(t *testing.T) {
	s, err := connector(nil, nil).OpenBackend(withBackend(config.BackendAuto))
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	defer s.Close()

	if _, ok := s.Backend.(*brightness.SysfsBackend); !ok {
		t.Fatalf("expected sysfs backend, got %T", s.Backend)
	}
}

func TestOpenBackend_GnomeRequiresSessionBus(t *testing.T) {
	if _, err := connector(nil, nil).OpenBackend(withBackend(config.BackendGnome)); err == nil {
		t.Fatal("expected error without a session bus")
	}
}

func TestOpenBackend_GnomeEvenWhenUnavailable(t *testing.T) {
	session := &stubConn{obj: &stubObject{err: errors.New("no owner")}}

	s, err := connector(session, nil).OpenBackend(withBackend(config.BackendGnome))
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	defer s.Close()

	if s.Backend.IsAvailable() {
		t.Error("expected backend to report unavailable")
	}
	if _, err := s.Backend.Brightness(); !errors.Is(err, brightness.ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable, got %v", err)
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	if _, err := connector(nil, nil).OpenBackend(withBackend("ddc")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
