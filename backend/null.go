package backend

import (
	"sync"
)

// NullAudio discards sounds.
type NullAudio struct{}

func (NullAudio) PlaySound(string, int) (SoundHandle, error) { return 0, nil }
func (NullAudio) StopSound(SoundHandle)                      {}
func (NullAudio) StopAllSounds()                             {}

// NullRender hands out increasing handles and keeps nothing.
type NullRender struct {
	mu   sync.Mutex
	next BitmapHandle
}

func (r *NullRender) RegisterBitmap(width, height int, rgba []byte) (BitmapHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return r.next, nil
}

// Navigation records a NavigateToURL call.
type Navigation struct {
	URL    string
	Target string
	Method NavigationMethod
	Vars   map[string]string
}

// NullNavigator records navigations and refuses sockets.
type NullNavigator struct {
	mu      sync.Mutex
	visited []Navigation
}

func (n *NullNavigator) NavigateToURL(url, target string, method NavigationMethod, vars map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visited = append(n.visited, Navigation{URL: url, Target: target, Method: method, Vars: vars})
}

func (n *NullNavigator) ConnectSocket(string, int, SocketSink) (Socket, error) {
	return nil, ErrUnsupported
}

// Navigations returns the recorded navigations.
func (n *NullNavigator) Navigations() []Navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Navigation, len(n.visited))
	copy(out, n.visited)
	return out
}

// NullUI discards UI requests.
type NullUI struct{}

func (NullUI) Message(string)       {}
func (NullUI) SetClipboard(string)  {}
func (NullUI) SetMouseVisible(bool) {}

// MemoryStorage keeps SharedObject data in a map.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStorage creates empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (s *MemoryStorage) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (s *MemoryStorage) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStorage) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}
