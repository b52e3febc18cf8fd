package backend

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"
)

var netLog = commonlog.GetLogger("avmcore.backend.net")

// ErrSocketClosed is returned by Send on a closed socket.
var ErrSocketClosed = errors.New("backend: socket is closed")

// WebSocketNavigator carries XMLSocket traffic over websockets. Page
// navigations are recorded like NullNavigator does.
type WebSocketNavigator struct {
	NullNavigator

	// Scheme is "ws" or "wss". Empty means "ws".
	Scheme string
	// Path is appended to host:port. Empty means "/".
	Path string
	// HandshakeTimeout bounds each dial. Zero means 10s.
	HandshakeTimeout time.Duration

	mu      sync.Mutex
	sockets map[string]*wsSocket
}

// NewWebSocketNavigator creates a navigator that dials ws://host:port/.
func NewWebSocketNavigator() *WebSocketNavigator {
	return &WebSocketNavigator{sockets: make(map[string]*wsSocket)}
}

// ConnectSocket starts dialing and returns immediately. The outcome is
// reported through sink.SocketConnected from the dialing goroutine.
func (n *WebSocketNavigator) ConnectSocket(host string, port int, sink SocketSink) (Socket, error) {
	if host == "" || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("backend: invalid socket address %q:%d", host, port)
	}
	s := &wsSocket{
		id:   uuid.New().String(),
		sink: sink,
		nav:  n,
	}
	n.mu.Lock()
	if n.sockets == nil {
		n.sockets = make(map[string]*wsSocket)
	}
	n.sockets[s.id] = s
	n.mu.Unlock()

	go s.dial(n.url(host, port), n.timeout())
	return s, nil
}

// Open returns the number of sockets that are not yet closed.
func (n *WebSocketNavigator) Open() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sockets)
}

func (n *WebSocketNavigator) url(host string, port int) string {
	scheme := n.Scheme
	if scheme == "" {
		scheme = "ws"
	}
	path := n.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

func (n *WebSocketNavigator) timeout() time.Duration {
	if n.HandshakeTimeout > 0 {
		return n.HandshakeTimeout
	}
	return 10 * time.Second
}

func (n *WebSocketNavigator) forget(id string) {
	n.mu.Lock()
	delete(n.sockets, id)
	n.mu.Unlock()
}

// ---------------------------------------------------------------------------
// wsSocket
// ---------------------------------------------------------------------------

type wsSocket struct {
	id   string
	sink SocketSink
	nav  *WebSocketNavigator

	mu      sync.Mutex
	conn    *websocket.Conn
	pending [][]byte
	closed  bool
}

func (s *wsSocket) ID() string {
	return s.id
}

func (s *wsSocket) dial(url string, timeout time.Duration) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = timeout

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		netLog.Infof("socket %s: dial %s failed: %s", s.id, url, err)
		s.nav.forget(s.id)
		s.sink.SocketConnected(s.id, false)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	pending := s.pending
	s.pending = nil
	for _, data := range pending {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			netLog.Infof("socket %s: flush failed: %s", s.id, err)
		}
	}
	s.mu.Unlock()

	s.sink.SocketConnected(s.id, true)
	s.readLoop()
}

func (s *wsSocket) readLoop() {
	defer func() {
		s.markClosed()
		s.sink.SocketClosed(s.id)
	}()
	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			s.sink.SocketData(s.id, message)
		}
	}
}

// Send writes data as one text message. Data sent before the connection
// is established is queued and flushed once it is.
func (s *wsSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	if s.conn == nil {
		s.pending = append(s.pending, append([]byte(nil), data...))
		return nil
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	s.nav.forget(s.id)

	if conn == nil {
		return nil
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

func (s *wsSocket) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.nav.forget(s.id)
}
