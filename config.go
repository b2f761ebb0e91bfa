package main

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Names of the persisted records inside the FileStore.
const (
	configFile   = "config.json"
	settingsFile = "settings.json"
)

// ConfigStore loads and saves the runtime Config and CameraSettings records.
// Loading never fails: when the store cannot be mounted or a record cannot be
// read, defaults are returned (and written back when the store is usable) so
// the device always boots.
type ConfigStore struct {
	fs  FileStore
	log *zap.Logger
}

// NewConfigStore creates a store on top of fs.
func NewConfigStore(fs FileStore, log *zap.Logger) *ConfigStore {
	return &ConfigStore{fs: fs, log: log}
}

// LoadConfig reads config.json.  Keys missing from the file keep their default
// values.  A missing or unreadable file is replaced with the defaults.
func (cs *ConfigStore) LoadConfig() Config {
	cfg := DefaultConfig()
	if err := cs.fs.Mount(); err != nil {
		cs.log.Error("config store unavailable, using defaults", zap.Error(err))
		return cfg
	}
	data, err := cs.read(configFile)
	if err == nil {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		cs.log.Warn("unable to read config, writing defaults", zap.Error(err))
		cfg = DefaultConfig()
		if err := cs.SaveConfig(cfg); err != nil {
			cs.log.Error("saving default config", zap.Error(err))
		}
		return cfg
	}
	return sanitizeConfig(cfg)
}

// sanitizeConfig replaces negative intervals, which can only come from a
// hand-edited file, with their defaults.
func sanitizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.PIRDelayMs < 0 {
		cfg.PIRDelayMs = def.PIRDelayMs
	}
	if cfg.TempIntervalMs < 0 {
		cfg.TempIntervalMs = def.TempIntervalMs
	}
	if cfg.StateIntervalMs < 0 {
		cfg.StateIntervalMs = def.StateIntervalMs
	}
	return cfg
}

// SaveConfig replaces config.json with cfg.
func (cs *ConfigStore) SaveConfig(cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return newError(KindStorage, "save config", "", err)
	}
	return cs.write(configFile, data)
}

// LoadCameraSettings reads settings.json, falling back to (and persisting) the
// factory settings.  The returned record is always valid.
func (cs *ConfigStore) LoadCameraSettings() CameraSettings {
	if err := cs.fs.Mount(); err != nil {
		cs.log.Error("settings store unavailable, using defaults", zap.Error(err))
		return DefaultCameraSettings()
	}
	var s CameraSettings
	data, err := cs.read(settingsFile)
	if err == nil {
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		cs.log.Warn("unable to read camera settings, writing defaults", zap.Error(err))
		s = DefaultCameraSettings()
		if err := cs.SaveCameraSettings(s); err != nil {
			cs.log.Error("saving default camera settings", zap.Error(err))
		}
	}
	return s
}

// SaveCameraSettings replaces settings.json with s.  Invalid records are
// refused.
func (cs *ConfigStore) SaveCameraSettings(s CameraSettings) error {
	if !s.Valid {
		return newError(KindStorage, "save settings", "record not valid", nil)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return newError(KindStorage, "save settings", "", err)
	}
	return cs.write(settingsFile, data)
}

// RemoveCameraSettings deletes settings.json so that the next load
// regenerates the factory settings.
func (cs *ConfigStore) RemoveCameraSettings() error {
	if err := cs.fs.Mount(); err != nil {
		return newError(KindStorage, "remove settings", "", err)
	}
	if err := cs.fs.Remove(settingsFile); err != nil {
		return newError(KindStorage, "remove settings", "", err)
	}
	return nil
}

func (cs *ConfigStore) read(name string) ([]byte, error) {
	if !cs.fs.Exists(name) {
		return nil, fmt.Errorf("%s does not exist", name)
	}
	data, err := cs.fs.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (cs *ConfigStore) write(name string, data []byte) error {
	op := "write " + name
	if err := cs.fs.Mount(); err != nil {
		return newError(KindStorage, op, "", err)
	}
	if err := cs.fs.WriteFile(name, data); err != nil {
		return newError(KindStorage, op, "", err)
	}
	return nil
}
