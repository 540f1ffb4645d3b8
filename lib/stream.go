package lib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const streamBoundary = "frame"

// subscription is a single-slot mailbox. A newer frame replaces one the
// viewer has not picked up yet.
type subscription struct {
	id      string
	mu      sync.Mutex
	cond    *sync.Cond
	data    []byte
	seq     uint64
	read    uint64
	dropped uint64
	closed  bool
}

func (sub *subscription) publish(data []byte, seq uint64) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	if sub.data != nil && sub.read < sub.seq {
		sub.dropped++
	}
	sub.data = data
	sub.seq = seq
	sub.cond.Signal()
}

// next blocks until a frame newer than the last one read is available. It
// returns nil once the subscription is closed.
func (sub *subscription) next() []byte {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for !sub.closed && sub.read >= sub.seq {
		sub.cond.Wait()
	}
	if sub.closed {
		return nil
	}
	sub.read = sub.seq
	return sub.data
}

func (sub *subscription) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.closed = true
	sub.cond.Broadcast()
}

// Broadcaster is a PreviewSink that JPEG-encodes each shown frame once and
// hands it to every subscribed viewer.
type Broadcaster struct {
	Quality int

	mu     sync.Mutex
	subs   map[string]*subscription
	seq    uint64
	closed bool
	log    *logrus.Logger
}

func NewBroadcaster(quality int, logger *logrus.Logger) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if quality <= 0 {
		quality = 80
	}
	return &Broadcaster{
		Quality: quality,
		subs:    make(map[string]*subscription),
		log:     logger,
	}
}

// Subscribe registers a viewer. The returned function blocks for the next
// frame and returns nil after unsubscribe is called or the broadcaster is
// closed.
func (b *Broadcaster) Subscribe() (id string, next func() []byte, unsubscribe func()) {
	sub := &subscription{id: uuid.New().String()}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	if b.closed {
		sub.closed = true
	} else {
		b.subs[sub.id] = sub
	}
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{
		"function": "Broadcaster.Subscribe",
		"viewer":   sub.id,
	}).Debug("Viewer subscribed")

	return sub.id, sub.next, func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
		sub.close()
	}
}

func (b *Broadcaster) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many frames each viewer missed because it was slower
// than the producer.
func (b *Broadcaster) Dropped() map[string]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]uint64, len(b.subs))
	for id, sub := range b.subs {
		sub.mu.Lock()
		out[id] = sub.dropped
		sub.mu.Unlock()
	}
	return out
}

func (b *Broadcaster) Show(frame *Frame) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	var buf bytes.Buffer
	if err := frame.EncodeJPEG(&buf, b.Quality); err != nil {
		b.log.WithFields(logrus.Fields{
			"function": "Broadcaster.Show",
		}).WithError(err).Warn("Failed to encode frame")
		return
	}
	data := buf.Bytes()

	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()
	for _, sub := range subs {
		sub.publish(data, seq)
	}
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscription)
	b.closed = true
	b.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// StreamServer serves a Broadcaster's frames as an MJPEG stream on /stream
// and as binary WebSocket messages on /ws.
type StreamServer struct {
	b        *Broadcaster
	upgrader websocket.Upgrader
	server   *http.Server
	log      *logrus.Logger
}

func NewStreamServer(b *Broadcaster, logger *logrus.Logger) *StreamServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StreamServer{
		b: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		log: logger,
	}
}

func (s *StreamServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleMJPEG)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

const indexPage = `<!doctype html>
<html><head><title>cameo</title></head>
<body><img src="/stream"></body></html>
`

func (s *StreamServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

func (s *StreamServer) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id, next, unsubscribe := s.b.Subscribe()
	defer unsubscribe()
	go func() {
		<-r.Context().Done()
		unsubscribe()
	}()

	logger := s.log.WithFields(logrus.Fields{
		"function": "StreamServer.handleMJPEG",
		"viewer":   id,
		"remote":   r.RemoteAddr,
	})
	logger.Info("MJPEG viewer connected")

	mw := multipart.NewWriter(w)
	mw.SetBoundary(streamBoundary)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		data := next()
		if data == nil {
			break
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Content-Length": {strconv.Itoa(len(data))},
		})
		if err == nil {
			_, err = part.Write(data)
		}
		if err != nil {
			logger.WithError(err).Debug("MJPEG viewer write failed")
			break
		}
		flusher.Flush()
	}
	logger.Info("MJPEG viewer disconnected")
}

func (s *StreamServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "StreamServer.handleWebSocket",
		}).WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	id, next, unsubscribe := s.b.Subscribe()
	defer unsubscribe()
	logger := s.log.WithFields(logrus.Fields{
		"function": "StreamServer.handleWebSocket",
		"viewer":   id,
		"remote":   r.RemoteAddr,
	})
	logger.Info("WebSocket viewer connected")

	// viewers never send anything we need; reading detects the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for {
		data := next()
		if data == nil {
			break
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			logger.WithError(err).Debug("WebSocket write failed")
			break
		}
	}
	logger.Info("WebSocket viewer disconnected")
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *StreamServer) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.server = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithFields(logrus.Fields{
				"function": "StreamServer.Start",
			}).WithError(err).Error("Stream server stopped")
		}
	}()
	s.log.WithFields(logrus.Fields{
		"function": "StreamServer.Start",
		"addr":     ln.Addr().String(),
	}).Info("Serving preview stream")
	return ln.Addr().String(), nil
}

// Shutdown closes every viewer and stops the server.
func (s *StreamServer) Shutdown(ctx context.Context) error {
	s.b.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
