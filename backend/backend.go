// Package backend defines the capability interfaces the script VMs use to
// reach audio, rendering, navigation, storage and UI services. The VM core
// depends only on these interfaces; concrete implementations live here too
// (null/in-memory ones for headless runs, sqlite storage, websocket
// sockets).
package backend

import "errors"

// ErrUnsupported is returned by backends that do not provide a capability.
var ErrUnsupported = errors.New("backend: operation not supported")

// ErrNotFound is returned by Storage.Get for a missing key.
var ErrNotFound = errors.New("backend: not found")

// SoundHandle identifies a playing sound.
type SoundHandle uint32

// BitmapHandle identifies a registered bitmap.
type BitmapHandle uint32

// Audio plays sounds. Calls return immediately.
type Audio interface {
	PlaySound(name string, loops int) (SoundHandle, error)
	StopSound(h SoundHandle)
	StopAllSounds()
}

// Render receives bitmap data from scripts.
type Render interface {
	RegisterBitmap(width, height int, rgba []byte) (BitmapHandle, error)
}

// NavigationMethod is the HTTP method for a navigation request.
type NavigationMethod int

const (
	MethodNone NavigationMethod = iota
	MethodGet
	MethodPost
)

// SocketSink receives socket events. Implementations must be safe to call
// from any goroutine; the player queues events for the next frame.
type SocketSink interface {
	SocketConnected(id string, ok bool)
	SocketData(id string, data []byte)
	SocketClosed(id string)
}

// Socket is an open XMLSocket-style connection.
type Socket interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Navigator opens URLs and sockets. Both are fire-and-forget: results come
// back through SocketSink or not at all.
type Navigator interface {
	NavigateToURL(url, target string, method NavigationMethod, vars map[string]string)
	ConnectSocket(host string, port int, sink SocketSink) (Socket, error)
}

// Storage persists SharedObject data by name.
type Storage interface {
	Get(name string) ([]byte, error)
	Put(name string, data []byte) error
	Remove(name string) error
}

// UI exposes host user-interface hooks.
type UI interface {
	Message(text string)
	SetClipboard(text string)
	SetMouseVisible(visible bool)
}

// Backends bundles one implementation of each capability.
type Backends struct {
	Audio     Audio
	Render    Render
	Navigator Navigator
	Storage   Storage
	UI        UI
}

// Null returns backends that accept and discard every request, with
// in-memory storage.
func Null() Backends {
	return Backends{
		Audio:     NullAudio{},
		Render:    &NullRender{},
		Navigator: &NullNavigator{},
		Storage:   NewMemoryStorage(),
		UI:        NullUI{},
	}
}
