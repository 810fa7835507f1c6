package jellyfin

import "sync"

// Factory hands out clients bound to a server and token. The last client is
// cached until Invalidate, so callers get connection reuse without keeping a
// stale token alive after the session changes.
type Factory struct {
	device DeviceInfo

	mu     sync.RWMutex
	key    string
	client *Client
}

// NewFactory creates a factory issuing clients with the given device identity.
func NewFactory(device DeviceInfo) *Factory {
	return &Factory{device: device}
}

// Device returns the identity baked into issued clients.
func (f *Factory) Device() DeviceInfo {
	return f.device
}

// Client returns a client for the given server and token, reusing the
// cached one when both match.
func (f *Factory) Client(serverURL, token string) *Client {
	key := serverURL + "|" + token

	f.mu.RLock()
	if f.client != nil && f.key == key {
		client := f.client
		f.mu.RUnlock()
		return client
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil || f.key != key {
		f.client = NewClient(serverURL, token, f.device)
		f.key = key
	}
	return f.client
}

// Invalidate drops the cached client. The next Client call builds a fresh
// one, picking up whatever token the caller passes then.
func (f *Factory) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.client = nil
	f.key = ""
}
