package brightness

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// DefaultBacklightPath is where the kernel exposes backlight devices.
const DefaultBacklightPath = "/sys/class/backlight"

const (
	login1Destination = "org.freedesktop.login1"
	login1SessionPath = "/org/freedesktop/login1/session/auto"
	login1SetBright   = "org.freedesktop.login1.Session.SetBrightness"
)

// SysfsBackend reads the first backlight device under basePath and writes
// through logind, so no write access to sysfs is needed. conn must be a
// system bus connection.
type SysfsBackend struct {
	conn     Conn
	basePath string
	log      zerolog.Logger

	mu        sync.Mutex
	onChanged OnChangedFunc
	fd        int
	closed    bool
}

func NewSysfs(conn Conn, basePath string, opts ...Option) *SysfsBackend {
	if basePath == "" {
		basePath = DefaultBacklightPath
	}
	o := newOptions(opts)
	return &SysfsBackend{
		conn:     conn,
		basePath: basePath,
		log:      o.log.With().Str("backend", "sysfs").Logger(),
		fd:       -1,
	}
}

func (s *SysfsBackend) DescriptiveString() string {
	return "sysfs backlight"
}

func (s *SysfsBackend) IsAvailable() bool {
	_, err := s.device()
	return err == nil
}

// device returns the directory of the first backlight device.
func (s *SysfsBackend) device() (string, error) {
	paths, err := filepath.Glob(filepath.Join(s.basePath, "*"))
	if err != nil || len(paths) == 0 {
		return "", ErrNotAvailable
	}
	return paths[0], nil
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func readMax(device string) (int, error) {
	maxVal, err := readInt(filepath.Join(device, "max_brightness"))
	if err != nil {
		return 0, err
	}
	if maxVal <= 0 {
		return 0, errors.New("invalid max_brightness value")
	}
	return maxVal, nil
}

func (s *SysfsBackend) Brightness() (int, error) {
	device, err := s.device()
	if err != nil {
		return 0, err
	}

	current, err := readInt(filepath.Join(device, "brightness"))
	if err != nil {
		return 0, fmt.Errorf("read brightness: %w", err)
	}
	maxVal, err := readMax(device)
	if err != nil {
		return 0, fmt.Errorf("read max_brightness: %w", err)
	}

	percent := int(math.Round(float64(current) / float64(maxVal) * 100.0))
	return min(max(percent, 0), 100), nil
}

func (s *SysfsBackend) SetBrightness(percent int) error {
	device, err := s.device()
	if err != nil {
		return err
	}
	if s.conn == nil {
		return ErrNotAvailable
	}

	maxVal, err := readMax(device)
	if err != nil {
		return fmt.Errorf("read max_brightness: %w", err)
	}

	raw := int64(math.Round(float64(percent) * float64(maxVal) / 100.0))
	if raw < 0 || raw > math.MaxUint32 {
		return fmt.Errorf("%w: %d", ErrOutOfRange, percent)
	}

	obj := s.conn.Object(login1Destination, login1SessionPath)
	if err := obj.Call(login1SetBright, 0, "backlight", filepath.Base(device), uint32(raw)).Err; err != nil {
		return fmt.Errorf("logind set brightness: %w", err)
	}
	return nil
}

// SetOnPropertiesChanged replaces the change callback. The uevent socket is
// opened on the first non-nil callback.
func (s *SysfsBackend) SetOnPropertiesChanged(fn OnChangedFunc) {
	s.mu.Lock()
	s.onChanged = fn
	start := fn != nil && s.fd < 0 && !s.closed
	if start {
		fd, err := openUevents()
		if err != nil {
			s.log.Warn().Err(err).Msg("uevent subscription failed")
			start = false
		} else {
			s.fd = fd
		}
	}
	fd := s.fd
	s.mu.Unlock()

	if start {
		go s.listen(fd)
	}
}

// CleanUp stops the uevent listener. The socket is closed by the listener
// within one receive timeout.
func (s *SysfsBackend) CleanUp() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func openUevents() (int, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_RAW, syscall.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return -1, fmt.Errorf("open netlink socket: %w", err)
	}

	addr := &syscall.SockaddrNetlink{
		Family: syscall.AF_NETLINK,
		Groups: 1, // kernel broadcast group
	}
	if err := syscall.Bind(fd, addr); err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("bind netlink socket: %w", err)
	}

	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("set netlink receive timeout: %w", err)
	}
	return fd, nil
}

func (s *SysfsBackend) listen(fd int) {
	defer func() {
		_ = syscall.Close(fd)
		s.mu.Lock()
		s.fd = -1
		s.mu.Unlock()
	}()

	buf := make([]byte, 4096)
	for {
		n, _, err := syscall.Recvfrom(fd, buf, 0)

		s.mu.Lock()
		closed := s.closed
		fn := s.onChanged
		s.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			if err != syscall.EAGAIN && err != syscall.EINTR {
				s.log.Debug().Err(err).Msg("netlink recv error")
			}
			continue
		}

		if !isBacklightChange(string(buf[:n])) || fn == nil {
			continue
		}
		level, err := s.Brightness()
		if err != nil {
			s.log.Debug().Err(err).Msg("re-read after uevent failed")
			continue
		}
		fn(level)
	}
}

// isBacklightChange reports whether a NUL separated uevent describes a
// backlight level change.
func isBacklightChange(msg string) bool {
	var subsystem, action bool
	for _, part := range strings.Split(msg, "\x00") {
		switch part {
		case "SUBSYSTEM=backlight":
			subsystem = true
		case "ACTION=change":
			action = true
		}
	}
	return subsystem && action
}
