package session

import "sync"

// LocationNavigator - Navigator без браузера: помнит текущий путь и
// сообщает о переходах через OnRedirect.
type LocationNavigator struct {
	mu         sync.Mutex
	location   string
	OnRedirect func(target string)
}

func NewLocationNavigator(location string) *LocationNavigator {
	if location == "" {
		location = HomePath
	}
	return &LocationNavigator{location: location}
}

func (n *LocationNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *LocationNavigator) Redirect(target string) {
	n.mu.Lock()
	n.location = target
	cb := n.OnRedirect
	n.mu.Unlock()
	if cb != nil {
		cb(target)
	}
}
