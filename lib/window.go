package lib

import (
	"bytes"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

const (
	KeyTab    = 9
	KeySpace  = 32
	KeyEscape = 27
	keyCtrlC  = 3
)

// KeyFunc handles one keypress.
type KeyFunc func(key int)

// WindowManager is the display the driver loop previews frames on. Keys
// pressed since the last call are dispatched by ProcessEvents.
type WindowManager interface {
	PreviewSink
	CreateWindow() error
	IsWindowCreated() bool
	ProcessEvents()
	DestroyWindow()
}

// TerminalWindow takes keys from a terminal and shows nothing. When in is a
// terminal it is put in raw mode so single keypresses arrive unbuffered.
type TerminalWindow struct {
	in      io.Reader
	onKey   KeyFunc
	keys    chan int
	created bool
	state   *term.State
	fd      int
	once    sync.Once
}

func NewTerminalWindow(in io.Reader, onKey KeyFunc) *TerminalWindow {
	if in == nil {
		in = os.Stdin
	}
	return &TerminalWindow{
		in:    in,
		onKey: onKey,
		keys:  make(chan int, 16),
		fd:    -1,
	}
}

func (w *TerminalWindow) CreateWindow() error {
	if w.created {
		return nil
	}
	if f, ok := w.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return err
		}
		w.fd = int(f.Fd())
		w.state = state
	}
	w.created = true

	w.once.Do(func() {
		go w.readKeys(w.keys)
	})
	return nil
}

func (w *TerminalWindow) readKeys(keys chan<- int) {
	buf := make([]byte, 1)
	for {
		n, err := w.in.Read(buf)
		if n == 1 {
			key := int(buf[0])
			if key == keyCtrlC {
				key = KeyEscape
			}
			select {
			case keys <- key:
			default:
			}
		}
		if err != nil {
			close(keys)
			return
		}
	}
}

func (w *TerminalWindow) IsWindowCreated() bool {
	return w.created
}

func (w *TerminalWindow) Show(frame *Frame) {}

func (w *TerminalWindow) ProcessEvents() {
	for {
		select {
		case key, ok := <-w.keys:
			if !ok {
				// input closed, behave as if escape was pressed once
				w.keys = nil
				if w.onKey != nil {
					w.onKey(KeyEscape)
				}
				return
			}
			if w.onKey != nil {
				w.onKey(key)
			}
		default:
			return
		}
	}
}

func (w *TerminalWindow) DestroyWindow() {
	if w.state != nil {
		term.Restore(w.fd, w.state)
		w.state = nil
	}
	w.created = false
}

// Raw reports whether the terminal is in raw mode.
func (w *TerminalWindow) Raw() bool {
	return w.state != nil
}

// CRLFWriter turns "\n" into "\r\n" so log lines stay aligned while the
// terminal is in raw mode.
type CRLFWriter struct {
	W io.Writer
}

func (c CRLFWriter) Write(p []byte) (int, error) {
	if _, err := c.W.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// HeadlessWindow shows nothing and never produces keys. It stays open until
// DestroyWindow.
type HeadlessWindow struct {
	created bool
}

func (w *HeadlessWindow) CreateWindow() error {
	w.created = true
	return nil
}

func (w *HeadlessWindow) IsWindowCreated() bool { return w.created }
func (w *HeadlessWindow) Show(frame *Frame)     {}
func (w *HeadlessWindow) ProcessEvents()        {}
func (w *HeadlessWindow) DestroyWindow()        { w.created = false }
