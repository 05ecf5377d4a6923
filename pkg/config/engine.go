package config

import "fmt"

// SectionIDEngine is the identifier for the engine settings section.
const SectionIDEngine = "engine"

// EngineSection holds default execution settings applied to runs that do not
// override them: step timeout, retry budget, and browser headlessness.
type EngineSection struct {
	stepTimeoutMs float64
	retryAttempts int
	headless      bool
	databasePath  string
}

// NewEngineSection creates an engine section with production defaults.
func NewEngineSection() *EngineSection {
	return &EngineSection{
		stepTimeoutMs: 30000,
		retryAttempts: 3,
		headless:      true,
	}
}

// ID returns the section identifier.
func (s *EngineSection) ID() string {
	return SectionIDEngine
}

// Data returns the current configuration data.
func (s *EngineSection) Data() map[string]interface{} {
	return map[string]interface{}{
		"stepTimeoutMs": s.stepTimeoutMs,
		"retryAttempts": s.retryAttempts,
		"headless":      s.headless,
		"databasePath":  s.databasePath,
	}
}

// SetData updates the configuration from the provided data.
func (s *EngineSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	if v, ok := data["stepTimeoutMs"]; ok {
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("stepTimeoutMs: expected number, got %T", v)
		}
		s.stepTimeoutMs = f
	}
	if v, ok := data["retryAttempts"]; ok {
		switch n := v.(type) {
		case float64:
			s.retryAttempts = int(n)
		case int:
			s.retryAttempts = n
		default:
			return fmt.Errorf("retryAttempts: expected number, got %T", v)
		}
	}
	if v, ok := data["headless"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("headless: expected bool, got %T", v)
		}
		s.headless = b
	}
	if v, ok := data["databasePath"]; ok {
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("databasePath: expected string, got %T", v)
		}
		s.databasePath = str
	}
	return nil
}

// Validate validates the current configuration.
func (s *EngineSection) Validate() error {
	if s.stepTimeoutMs <= 0 {
		return fmt.Errorf("stepTimeoutMs must be positive")
	}
	if s.retryAttempts < 1 {
		return fmt.Errorf("retryAttempts must be at least 1")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *EngineSection) Reset() {
	*s = *NewEngineSection()
}

// StepTimeoutMs returns the default per-attempt timeout in milliseconds.
func (s *EngineSection) StepTimeoutMs() float64 { return s.stepTimeoutMs }

// RetryAttempts returns the default per-step retry budget.
func (s *EngineSection) RetryAttempts() int { return s.retryAttempts }

// Headless reports whether browsers launch headless by default.
func (s *EngineSection) Headless() bool { return s.headless }

// DatabasePath returns the configured SQLite path, empty for the default.
func (s *EngineSection) DatabasePath() string { return s.databasePath }
