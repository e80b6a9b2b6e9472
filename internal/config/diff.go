package config

// ConfigDiff describes what changed between two configs: the server log
// level and the memory section. Provider changes are not tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MemoryTunablesChanged is true if any MemoryConfig field changed. This
	// covers the retrieval/assembly tunables (thresholds, window bounds,
	// cache sizing) and also postgres_dsn and dimension.
	MemoryTunablesChanged bool
	NewMemory             MemoryConfig
}

// Diff compares old and new configs and returns what changed in the server
// log level and in the memory section.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Memory != new.Memory {
		d.MemoryTunablesChanged = true
		d.NewMemory = new.Memory
	}

	return d
}
