package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AppManager supervises long running watchers. A watcher that returns or
// panics before being stopped is restarted after RestartDelay.
type AppManager struct {
	RestartDelay time.Duration

	mu    sync.Mutex
	stops []chan struct{}
	wg    sync.WaitGroup
}

func NewAppManager() *AppManager {
	return &AppManager{RestartDelay: 2 * time.Second}
}

func (m *AppManager) StartWatcher(name string, f func(stop <-chan struct{})) {
	stop := make(chan struct{})
	m.mu.Lock()
	m.stops = append(m.stops, stop)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Str("watcher", name).Interface("panic", r).Msg("watcher panic")
					}
				}()
				f(stop)
			}()

			select {
			case <-stop:
				return
			case <-time.After(m.RestartDelay):
				log.Info().Str("watcher", name).Msg("restarting watcher")
			}
		}
	}()
}

// StopAll signals every watcher and waits for them to return.
func (m *AppManager) StopAll() {
	m.mu.Lock()
	stops := m.stops
	m.stops = nil
	m.mu.Unlock()

	for _, s := range stops {
		close(s)
	}
	m.wg.Wait()
}
