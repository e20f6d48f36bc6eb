package serial

import (
	"bytes"
	"io"
	"iter"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.bug.st/serial"
	"golang.org/x/text/encoding/unicode"
)

// DefaultReadTimeout bounds each read while waiting for boot output.
const DefaultReadTimeout = 2 * time.Second

// Port is the part of a serial connection a Session reads from. A Read that
// returns 0 bytes and no error is a timeout.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Monitor opens boot-log sessions on freshly flashed boards.
type Monitor struct {
	BaudRate int
	Timeout  time.Duration
}

// Open connects to portName with both handshake lines held low. Leaving DTR
// or RTS asserted holds ESP boards in reset or the bootloader.
func (m *Monitor) Open(portName string) (*Session, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: m.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: false,
			RTS: false,
		},
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetDTR(false); err != nil {
		port.Close()
		return nil, err
	}
	if err := port.SetRTS(false); err != nil {
		port.Close()
		return nil, err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, err
	}
	return NewSession(port), nil
}

// Session reads one board's boot log line by line.
type Session struct {
	port    Port
	pending []byte
	buf     []byte
	started bool
	err     error

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an open port.
func NewSession(p Port) *Session {
	return &Session{port: p, buf: make([]byte, 1024)}
}

// Lines yields decoded boot-log lines. Lines holding undecodable bytes are
// pre-boot noise and are dropped. The sequence ends, and the port is closed,
// at the first blank line or when a read times out with nothing buffered.
// It can only be ranged over once.
func (s *Session) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.started {
			return
		}
		s.started = true
		defer s.Close()

		for {
			raw, ok := s.readLine()
			if !ok {
				return
			}
			line := strings.TrimRight(decode(raw), "\r\n")
			if strings.TrimSpace(line) == "" {
				return
			}
			if strings.ContainsRune(line, utf8.RuneError) {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Err returns the read error that ended the session, if any. Timeouts and
// EOF are not errors.
func (s *Session) Err() error {
	return s.err
}

// Close releases the port. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

// readLine returns the next newline-terminated chunk, or whatever is
// buffered once the port goes quiet.
func (s *Session) readLine() ([]byte, bool) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := s.pending[:i+1]
			s.pending = s.pending[i+1:]
			return line, true
		}

		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
			continue
		}
		if err != nil && err != io.EOF {
			s.err = err
		}
		if len(s.pending) == 0 {
			return nil, false
		}
		line := s.pending
		s.pending = nil
		return line, true
	}
}

func decode(raw []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}
