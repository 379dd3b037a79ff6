package watchers

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes an external command.
type Runner func(name string, args ...string) error

func execRunner(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// EwwSink pushes every change into eww variables. The OSD variable is set
// to true and flipped back after OSDDuration without further changes.
type EwwSink struct {
	Variable    string
	OSDVariable string
	OSDDuration time.Duration
	Run         Runner

	mu    sync.Mutex
	timer *time.Timer
}

func (e *EwwSink) Publish(info BrightnessInfo) {
	if e.Variable != "" {
		e.updateEww(e.Variable, info)
	}
	if e.OSDVariable == "" {
		return
	}

	e.updateEwwNoJson(e.OSDVariable, true)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.OSDDuration, func() {
		e.updateEwwNoJson(e.OSDVariable, false)
	})
}

// Close hides the OSD if it is still shown.
func (e *EwwSink) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil && e.timer.Stop() {
		e.updateEwwNoJson(e.OSDVariable, false)
	}
	e.timer = nil
}

func (e *EwwSink) run(args ...string) {
	run := e.Run
	if run == nil {
		run = execRunner
	}
	if err := run("eww", args...); err != nil {
		log.Debug().Err(err).Strs("args", args).Msg("eww update failed")
	}
}

func (e *EwwSink) updateEww(variable string, data any) {
	jsonData, _ := json.Marshal(data)
	e.run("update", variable+"="+string(jsonData))
}

func (e *EwwSink) updateEwwNoJson(variable string, data any) {
	e.run("update", fmt.Sprintf("%s=%v", variable, data))
}
