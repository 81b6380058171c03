package orchestrator

import (
	"strconv"
	"time"

	"github.com/ShayCichocki/chunkd/internal/state"
)

// Settings returns the effective runtime configuration: stored overrides on
// top of the configured defaults.
func (o *Orchestrator) Settings() (map[string]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	settings := map[string]string{
		state.SettingMaxAgents:        strconv.Itoa(o.maxAgents()),
		state.SettingDispatchInterval: o.dispatchInterval().String(),
	}
	stored, err := o.store.ListSettings()
	if err != nil {
		return nil, o.persistence("settings", err)
	}
	for k, v := range stored {
		settings[k] = v
	}
	return settings, nil
}

// UpdateSetting validates and persists a runtime-mutable setting. The
// dispatch loop picks the new value up on its next tick.
func (o *Orchestrator) UpdateSetting(key, value string) error {
	switch key {
	case state.SettingMaxAgents:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return &ValidationError{Msg: "max_agents must be a positive integer"}
		}
	case state.SettingDispatchInterval:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return &ValidationError{Msg: "dispatch_interval must be a positive duration"}
		}
	default:
		return &ValidationError{Msg: "unknown setting " + key}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.SetSetting(key, value); err != nil {
		return o.persistence("settings", err)
	}
	o.logger.Info("setting updated", "key", key, "value", value)
	return nil
}
