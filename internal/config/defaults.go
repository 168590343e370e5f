package config

import "pipewright/internal/channel"

const (
	defaultDataDir          = "./data"
	defaultLogDir           = ""
	defaultStateDir         = "~/.local/state/pipewright"
	defaultShell            = "/bin/sh"
	defaultKillGraceSeconds = 10
	defaultLogFormat        = "auto"
	defaultLogLevel         = "info"
	defaultHistoryEnabled   = true
)

// Default returns a Config populated with repository defaults. The pipe
// directory default is keyed by the current process id.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			PipeDir:  channel.DefaultPipeDir(),
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Pipeline: Pipeline{
			PreservePipeDir:  false,
			Shell:            defaultShell,
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		History: History{
			Enabled: defaultHistoryEnabled,
		},
	}
}
