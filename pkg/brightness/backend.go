package brightness

import (
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotAvailable is returned when the backing service or device cannot be reached.
	ErrNotAvailable = errors.New("brightness: interface not available")
	// ErrOutOfRange is returned for values that cannot be encoded as a 32-bit integer.
	ErrOutOfRange = errors.New("brightness: value out of range")
)

// OnChangedFunc receives the new brightness level.
type OnChangedFunc func(value int)

// Backend is the surface shared by every brightness controller.
type Backend interface {
	IsAvailable() bool
	Brightness() (int, error)
	SetBrightness(percent int) error
	SetOnPropertiesChanged(fn OnChangedFunc)
	CleanUp()
	DescriptiveString() string
}

// Conn is the part of *dbus.Conn used by the backends. The connection is
// owned by the caller.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

type options struct {
	log zerolog.Logger
}

// Option configures a backend.
type Option func(*options)

// WithLogger replaces the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func newOptions(opts []Option) options {
	o := options{log: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var (
	_ Conn    = (*dbus.Conn)(nil)
	_ Backend = (*GnomeAdapter)(nil)
	_ Backend = (*SysfsBackend)(nil)
)
