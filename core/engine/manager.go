// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package engine

import (
	"context"
	"fmt"
	"sync"
)

// Manager holds named database handles. Services that talk to several
// databases register each connected engine under a name and resolve it
// at request time; resolving a name that was never connected fails with
// ErrNotConnected instead of a nil dereference.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{clients: make(map[string]Client)}
}

// Register adds a connected engine under the given name. Re-registering
// a name replaces the previous handle.
func (m *Manager) Register(name string, client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[name] = client
}

// Database returns the engine registered under name.
func (m *Manager) Database(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("database %q: %w", name, ErrNotConnected)
	}
	return client, nil
}

// HealthCheck pings every registered engine and returns the first
// failure.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, client := range m.clients {
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("database %q: %w", name, err)
		}
	}
	return nil
}

// Close closes every registered engine and clears the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, client := range m.clients {
		if err := client.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.clients = make(map[string]Client)
	return first
}
