package brightness

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

const powerXML = `<node>
  <interface name="org.freedesktop.DBus.Properties">
    <method name="Get"/>
    <method name="Set"/>
  </interface>
  <interface name="org.gnome.SettingsDaemon.Power.Screen">
    <property name="Brightness" type="i" access="readwrite"/>
  </interface>
</node>`

type methodCall struct {
	method string
	args   []any
}

// fakeObject answers the handful of methods the backends call. Anything else
// panics through the nil embedded BusObject. block, when set, is only closed
// by tests and holds introspection until then.
type fakeObject struct {
	dbus.BusObject

	mu              sync.Mutex
	introspectXML   string
	introspectErr   error
	introspectCalls int
	block           chan struct{}
	value           dbus.Variant
	getErr          error
	setErr          error
	calls           []methodCall
}

func newFakeObject(level int32) *fakeObject {
	return &fakeObject{
		introspectXML: powerXML,
		value:         dbus.MakeVariant(level),
	}
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...any) *dbus.Call {
	if method == "org.freedesktop.DBus.Introspectable.Introspect" && o.block != nil {
		<-o.block
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, methodCall{method: method, args: args})

	switch method {
	case "org.freedesktop.DBus.Introspectable.Introspect":
		o.introspectCalls++
		if o.introspectErr != nil {
			return &dbus.Call{Err: o.introspectErr}
		}
		return &dbus.Call{Body: []any{o.introspectXML}}
	case "org.freedesktop.DBus.Properties.Get":
		if o.getErr != nil {
			return &dbus.Call{Err: o.getErr}
		}
		return &dbus.Call{Body: []any{o.value}}
	case "org.freedesktop.DBus.Properties.Set":
		if o.setErr != nil {
			return &dbus.Call{Err: o.setErr}
		}
		if v, ok := args[2].(dbus.Variant); ok {
			o.value = v
		}
		return &dbus.Call{}
	case login1SetBright:
		return &dbus.Call{}
	}
	return &dbus.Call{Err: fmt.Errorf("unexpected method %s", method)}
}

func (o *fakeObject) Path() dbus.ObjectPath {
	return GnomePath
}

func (o *fakeObject) lookups() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.introspectCalls
}

func (o *fakeObject) callsTo(method string) []methodCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []methodCall
	for _, c := range o.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (o *fakeObject) set(fn func(o *fakeObject)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o)
}

type fakeConn struct {
	obj *fakeObject

	mu             sync.Mutex
	matchErr       error
	matches        int
	removedMatches int
	signals        []chan<- *dbus.Signal
	objects        []string
}

func newFakeConn(obj *fakeObject) *fakeConn {
	return &fakeConn{obj: obj}
}

func (c *fakeConn) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	c.mu.Lock()
	c.objects = append(c.objects, dest+string(path))
	c.mu.Unlock()
	return c.obj
}

func (c *fakeConn) AddMatchSignal(options ...dbus.MatchOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matchErr != nil {
		return c.matchErr
	}
	c.matches++
	return nil
}

func (c *fakeConn) RemoveMatchSignal(options ...dbus.MatchOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removedMatches++
	return nil
}

func (c *fakeConn) Signal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, ch)
}

func (c *fakeConn) RemoveSignal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, registered := range c.signals {
		if registered == ch {
			c.signals = append(c.signals[:i], c.signals[i+1:]...)
			return
		}
	}
}

func (c *fakeConn) listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}

func (c *fakeConn) emit(sig *dbus.Signal) {
	c.mu.Lock()
	chans := append([]chan<- *dbus.Signal(nil), c.signals...)
	c.mu.Unlock()
	for _, ch := range chans {
		ch <- sig
	}
}

func propertiesChanged(iface string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Sender: ":1.42",
		Path:   GnomePath,
		Name:   propertiesChangedSignal,
		Body:   []any{iface, changed, []string{}},
	}
}

func brightnessChanged(level int32) *dbus.Signal {
	return propertiesChanged(GnomeScreenInterface, map[string]dbus.Variant{
		BrightnessProperty: dbus.MakeVariant(level),
	})
}

func waitInit(t *testing.T, a *GnomeAdapter) {
	t.Helper()
	select {
	case <-a.initDone:
	case <-time.After(2 * time.Second):
		t.Fatal("initial resolution did not finish")
	}
}

func recorder() (OnChangedFunc, <-chan int) {
	ch := make(chan int, 8)
	return func(v int) { ch <- v }, ch
}

func expectValue(t *testing.T, ch <-chan int, want int) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("callback got %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback not invoked, want %d", want)
	}
}

// drainUntil reads callback values until want shows up. Earlier values are
// signals that were still queued when the callback was registered.
func drainUntil(t *testing.T, ch <-chan int, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("callback never received %d", want)
		}
	}
}

func expectNone(t *testing.T, ch <-chan int) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected callback with %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}
