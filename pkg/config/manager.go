// Package config manages the product's persisted configuration: named
// sections validate and serialize themselves through a JSON file store.
package config

import (
	"fmt"
	"sync"
)

// Section is one self-contained configuration area. Sections own their
// defaults, validation, and (de)serialization to a generic data map.
type Section interface {
	// ID returns the section identifier used as the storage key.
	ID() string

	// Data returns the current configuration data.
	Data() map[string]interface{}

	// SetData updates the configuration from the provided data.
	SetData(data map[string]interface{}) error

	// Validate validates the current configuration.
	Validate() error

	// Reset resets the section to default configuration.
	Reset()
}

// Manager coordinates sections with their backing store.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	sections map[string]Section
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// RegisterSection adds a section to the manager.
func (m *Manager) RegisterSection(s Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sections[s.ID()]; exists {
		return fmt.Errorf("section %q already registered", s.ID())
	}
	m.sections[s.ID()] = s
	return nil
}

// GetSection retrieves a registered section by id.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sections[id]
	return s, ok
}

// LoadAll hydrates every registered section from the store. Sections with no
// stored data keep their defaults.
func (m *Manager) LoadAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Load(); err != nil {
		return fmt.Errorf("loading config store: %w", err)
	}
	for id, section := range m.sections {
		data, err := m.store.GetSection(id)
		if err != nil {
			continue // no stored data, keep defaults
		}
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("loading section %q: %w", id, err)
		}
	}
	return nil
}

// SaveAll validates and writes every registered section to the store.
func (m *Manager) SaveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, section := range m.sections {
		if err := section.Validate(); err != nil {
			return fmt.Errorf("section %q is invalid: %w", id, err)
		}
		if err := m.store.SetSection(id, section.Data()); err != nil {
			return fmt.Errorf("storing section %q: %w", id, err)
		}
	}
	return m.store.Save()
}
