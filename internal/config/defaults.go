package config

const (
	defaultStateDir           = "~/.local/share/discdump/state"
	defaultOutputDir          = "~/discdump"
	defaultLogDir             = "~/.local/share/discdump/logs"
	defaultDevice             = "/dev/sr0"
	defaultMaxBlocks          = 0
	defaultSpeed              = 0xFFFF
	defaultAudioSpeed         = 1200
	defaultSubchannel         = "auto"
	defaultSkip               = 1
	defaultRetryPasses        = 1
	defaultCheckpointInterval = 64
	defaultLeadOutSectors     = 100
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Drive: Drive{
			Device:     defaultDevice,
			MaxBlocks:  defaultMaxBlocks,
			Speed:      defaultSpeed,
			AudioSpeed: defaultAudioSpeed,
			Subchannel: defaultSubchannel,
		},
		Dump: Dump{
			Skip:               defaultSkip,
			FixOffset:          true,
			RetryPasses:        defaultRetryPasses,
			CheckpointInterval: defaultCheckpointInterval,
			DumpLeadOut:        true,
			LeadOutSectors:     defaultLeadOutSectors,
			Persistent:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
