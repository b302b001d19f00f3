package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// listener changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SpeakChanged bool
	NewSpeak     SpeakConfig
}

// HasChanges reports whether the diff contains any hot-reloadable change.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.SpeakChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Speak != new.Speak {
		d.SpeakChanged = true
		d.NewSpeak = new.Speak
	}

	return d
}
