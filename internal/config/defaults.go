package config

const (
	defaultConfigPath         = "~/.config/devflow/config.toml"
	projectConfigName         = "devflow.toml"
	dataDirName               = ".devflow"
	stateFileName             = "state.json"
	tasksDirName              = "tasks"
	logDirName                = "logs"
	defaultLockTimeoutMillis  = 3000
	defaultLockRetryMillis    = 50
	defaultPollIntervalMillis = 1000
	defaultWaitTimeoutSeconds = 300
	defaultTailLines          = 40
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 14
)

// Default returns a Config populated with repository defaults. Path fields are
// left empty and resolved against the repository root during normalization.
func Default() Config {
	return Config{
		State: State{
			LockTimeoutMillis: defaultLockTimeoutMillis,
			LockRetryMillis:   defaultLockRetryMillis,
		},
		Tasks: Tasks{
			PollIntervalMillis: defaultPollIntervalMillis,
			WaitTimeoutSeconds: defaultWaitTimeoutSeconds,
			TailLines:          defaultTailLines,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
