package watchers

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hoppxi/wigo-brightness/internal/config"
	"github.com/hoppxi/wigo-brightness/pkg/brightness"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

type BrightnessInfo struct {
	Level   int    `json:"level"`
	Backend string `json:"backend"`
}

// Sink receives brightness updates.
type Sink interface {
	Publish(info BrightnessInfo)
}

// Closer is implemented by sinks holding timers or other resources.
type Closer interface {
	Close()
}

type SinkFunc func(info BrightnessInfo)

func (f SinkFunc) Publish(info BrightnessInfo) { f(info) }

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (j *JSONSink) Publish(info BrightnessInfo) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(info); err != nil {
		log.Debug().Err(err).Msg("failed to write brightness update")
	}
}

// NotifySink shows a desktop notification per change.
type NotifySink struct{}

func (NotifySink) Publish(info BrightnessInfo) {
	if err := zenity.Notify(fmt.Sprintf("Brightness %d%%", info.Level), zenity.Title("Brightness")); err != nil {
		log.Debug().Err(err).Msg("desktop notification failed")
	}
}

// SinksFromConfig builds the sinks enabled in cfg.
func SinksFromConfig(cfg config.WatchConfig, stdout io.Writer) []Sink {
	var sinks []Sink
	if cfg.Stdout {
		sinks = append(sinks, NewJSONSink(stdout))
	}
	if cfg.Eww.Variable != "" || cfg.Eww.OSDVariable != "" {
		sinks = append(sinks, &EwwSink{
			Variable:    cfg.Eww.Variable,
			OSDVariable: cfg.Eww.OSDVariable,
			OSDDuration: time.Duration(cfg.Eww.OSDSeconds) * time.Second,
		})
	}
	if cfg.Notify {
		sinks = append(sinks, NotifySink{})
	}
	return sinks
}

// BrightnessWatcher forwards change notifications of a backend to its sinks.
type BrightnessWatcher struct {
	backend brightness.Backend

	mu    sync.RWMutex
	sinks []Sink
}

func NewBrightnessWatcher(b brightness.Backend, sinks ...Sink) *BrightnessWatcher {
	return &BrightnessWatcher{backend: b, sinks: sinks}
}

// SetSinks swaps the sinks, closing the replaced ones.
func (w *BrightnessWatcher) SetSinks(sinks ...Sink) {
	w.mu.Lock()
	old := w.sinks
	w.sinks = sinks
	w.mu.Unlock()

	closeSinks(old)
}

// Close closes every sink.
func (w *BrightnessWatcher) Close() {
	w.SetSinks()
}

func closeSinks(sinks []Sink) {
	for _, s := range sinks {
		if c, ok := s.(Closer); ok {
			c.Close()
		}
	}
}

func (w *BrightnessWatcher) publish(level int) {
	info := BrightnessInfo{Level: level, Backend: w.backend.DescriptiveString()}

	w.mu.RLock()
	sinks := w.sinks
	w.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(info)
	}
}

// Run publishes the current level, then every change until stop is closed.
func (w *BrightnessWatcher) Run(stop <-chan struct{}) {
	events := make(chan int, 1)
	w.backend.SetOnPropertiesChanged(func(level int) {
		offer(events, level)
	})
	defer w.backend.SetOnPropertiesChanged(nil)

	if level, err := w.backend.Brightness(); err != nil {
		log.Warn().Err(err).Str("backend", w.backend.DescriptiveString()).Msg("failed to read brightness")
	} else {
		w.publish(level)
	}

	for {
		select {
		case <-stop:
			return
		case level := <-events:
			w.publish(level)
		}
	}
}

// offer replaces a pending level so slow sinks only see the latest one.
func offer(ch chan int, v int) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
