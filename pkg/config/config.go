package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates and initializes the global configuration manager.
// This should be called once at application startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	if err := manager.RegisterSection(NewDomainScopeSection()); err != nil {
		return err
	}
	if err := manager.RegisterSection(NewEngineSection()); err != nil {
		return err
	}
	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetDomainScope returns the domain scope section from global config.
// Returns nil if config is not initialized.
func GetDomainScope() *DomainScopeSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDDomainScope)
	if !ok {
		return nil
	}
	scope, ok := section.(*DomainScopeSection)
	if !ok {
		return nil
	}
	return scope
}

// GetEngine returns the engine settings section from global config.
// Returns nil if config is not initialized.
func GetEngine() *EngineSection {
	if !IsInitialized() {
		return nil
	}
	section, ok := Global().GetSection(SectionIDEngine)
	if !ok {
		return nil
	}
	engine, ok := section.(*EngineSection)
	if !ok {
		return nil
	}
	return engine
}
