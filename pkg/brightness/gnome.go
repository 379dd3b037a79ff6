package brightness

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus identity of the GNOME settings daemon power plugin.
const (
	GnomeDestination                     = "org.gnome.SettingsDaemon.Power"
	GnomePath            dbus.ObjectPath = "/org/gnome/SettingsDaemon/Power"
	GnomeScreenInterface                 = "org.gnome.SettingsDaemon.Power.Screen"
	BrightnessProperty                   = "Brightness"

	brightnessSignature = "i"

	propertiesInterface     = "org.freedesktop.DBus.Properties"
	propertiesChangedMember = "PropertiesChanged"
	propertiesChangedSignal = propertiesInterface + "." + propertiesChangedMember
)

// properties is the resolved org.freedesktop.DBus.Properties capability of
// the power object.
type properties struct {
	obj dbus.BusObject
}

func (p *properties) Get(iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := p.obj.Call(propertiesInterface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (p *properties) Set(iface, prop string, value dbus.Variant) error {
	return p.obj.Call(propertiesInterface+".Set", 0, iface, prop, value).Err
}

type subscription struct {
	token string
	ch    chan *dbus.Signal
	match []dbus.MatchOption
	done  chan struct{}
}

// GnomeAdapter reads and writes the screen brightness exposed by
// gnome-settings-daemon on the session bus.
//
// The mutex only guards field access. Lookups run without it, so two
// concurrent first calls may both hit the bus; the first success is kept.
type GnomeAdapter struct {
	conn Conn
	log  zerolog.Logger

	mu        sync.Mutex
	iface     *properties
	sub       *subscription
	onChanged OnChangedFunc
	closed    bool

	initDone chan struct{}
}

// NewGnome returns immediately. Resolution of the power object and the
// PropertiesChanged subscription happen in the background; failures leave
// the adapter unavailable without reporting an error.
func NewGnome(conn Conn, opts ...Option) *GnomeAdapter {
	o := newOptions(opts)
	a := &GnomeAdapter{
		conn:     conn,
		log:      o.log.With().Str("backend", "gnome").Logger(),
		initDone: make(chan struct{}),
	}

	go a.subscribe()
	return a
}

func (a *GnomeAdapter) DescriptiveString() string {
	return "org.gnome.SettingsDaemon"
}

func (a *GnomeAdapter) IsAvailable() bool {
	_, err := a.resolve()
	return err == nil
}

// SetOnPropertiesChanged replaces the change callback. nil clears it.
func (a *GnomeAdapter) SetOnPropertiesChanged(fn OnChangedFunc) {
	a.mu.Lock()
	a.onChanged = fn
	a.mu.Unlock()
}

// CleanUp drops the PropertiesChanged subscription. The resolved interface
// and the connection are kept.
func (a *GnomeAdapter) CleanUp() {
	a.mu.Lock()
	a.closed = true
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if sub == nil {
		return
	}

	a.conn.RemoveSignal(sub.ch)
	if err := a.conn.RemoveMatchSignal(sub.match...); err != nil {
		a.log.Debug().Err(err).Str("subscription", sub.token).Msg("failed to remove match rule")
	}
	close(sub.done)
	a.log.Debug().Str("subscription", sub.token).Msg("unsubscribed")
}

func (a *GnomeAdapter) Brightness() (int, error) {
	iface, err := a.resolve()
	if err != nil {
		return 0, err
	}

	v, err := iface.Get(GnomeScreenInterface, BrightnessProperty)
	if err != nil {
		return 0, fmt.Errorf("get %s.%s: %w", GnomeScreenInterface, BrightnessProperty, err)
	}

	level, ok := v.Value().(int32)
	if !ok {
		return 0, fmt.Errorf("get %s.%s: unexpected value of type %s", GnomeScreenInterface, BrightnessProperty, v.Signature())
	}
	return int(level), nil
}

func (a *GnomeAdapter) SetBrightness(percent int) error {
	iface, err := a.resolve()
	if err != nil {
		return err
	}

	if percent < math.MinInt32 || percent > math.MaxInt32 {
		return fmt.Errorf("%w: %d", ErrOutOfRange, percent)
	}

	value := dbus.MakeVariantWithSignature(int32(percent), dbus.ParseSignatureMust(brightnessSignature))
	if err := iface.Set(GnomeScreenInterface, BrightnessProperty, value); err != nil {
		return fmt.Errorf("set %s.%s: %w", GnomeScreenInterface, BrightnessProperty, err)
	}
	return nil
}

// resolve returns the cached Properties capability or looks it up. Every
// failure collapses into ErrNotAvailable.
func (a *GnomeAdapter) resolve() (*properties, error) {
	a.mu.Lock()
	cached := a.iface
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	obj := a.conn.Object(GnomeDestination, GnomePath)

	node, err := introspect.Call(obj)
	if err != nil {
		a.log.Debug().Err(err).Msg("power object lookup failed")
		return nil, ErrNotAvailable
	}
	if !hasInterface(node, propertiesInterface) {
		a.log.Debug().Msg("power object does not implement " + propertiesInterface)
		return nil, ErrNotAvailable
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.iface == nil {
		a.iface = &properties{obj: obj}
	}
	return a.iface, nil
}

func hasInterface(node *introspect.Node, name string) bool {
	if node == nil {
		return false
	}
	return slices.ContainsFunc(node.Interfaces, func(i introspect.Interface) bool {
		return i.Name == name
	})
}

func (a *GnomeAdapter) subscribe() {
	defer close(a.initDone)

	if _, err := a.resolve(); err != nil {
		return
	}

	match := []dbus.MatchOption{
		dbus.WithMatchSender(GnomeDestination),
		dbus.WithMatchObjectPath(GnomePath),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember(propertiesChangedMember),
	}
	if err := a.conn.AddMatchSignal(match...); err != nil {
		a.log.Debug().Err(err).Msg("failed to add PropertiesChanged match rule")
		return
	}

	sub := &subscription{
		token: uuid.NewString(),
		ch:    make(chan *dbus.Signal, 16),
		match: match,
		done:  make(chan struct{}),
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = a.conn.RemoveMatchSignal(match...)
		return
	}
	a.sub = sub
	a.conn.Signal(sub.ch)
	a.mu.Unlock()

	a.log.Debug().Str("subscription", sub.token).Msg("subscribed to PropertiesChanged")
	go a.listen(sub)
}

func (a *GnomeAdapter) listen(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case sig, ok := <-sub.ch:
			if !ok {
				return
			}
			a.dispatch(sig)
		}
	}
}

func (a *GnomeAdapter) dispatch(sig *dbus.Signal) {
	level, ok := brightnessFromSignal(sig)
	if !ok {
		return
	}

	a.mu.Lock()
	fn := a.onChanged
	if a.closed {
		fn = nil
	}
	a.mu.Unlock()

	if fn != nil {
		fn(level)
	}
}

// brightnessFromSignal extracts the new level from a PropertiesChanged
// signal of the Screen interface.
func brightnessFromSignal(sig *dbus.Signal) (int, bool) {
	if sig == nil || sig.Path != GnomePath || sig.Name != propertiesChangedSignal {
		return 0, false
	}

	if len(sig.Body) < 2 {
		return 0, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != GnomeScreenInterface {
		return 0, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, false
	}

	// A zero Variant carries no value.
	v, ok := changed[BrightnessProperty]
	if !ok || v.Value() == nil {
		return 0, false
	}
	level, ok := v.Value().(int32)
	return int(level), ok
}
