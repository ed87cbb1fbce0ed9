package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDrive()
	c.normalizeDump()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDrive() {
	if value, ok := os.LookupEnv("DISCDUMP_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.Drive.Device = strings.TrimSpace(value)
	}
	c.Drive.Device = strings.TrimSpace(c.Drive.Device)
	if c.Drive.Device == "" {
		c.Drive.Device = defaultDevice
	}
	c.Drive.Subchannel = strings.ToLower(strings.TrimSpace(c.Drive.Subchannel))
	if c.Drive.Subchannel == "" {
		c.Drive.Subchannel = defaultSubchannel
	}
	if c.Drive.Speed == 0 {
		c.Drive.Speed = defaultSpeed
	}
	if c.Drive.AudioSpeed == 0 {
		c.Drive.AudioSpeed = defaultAudioSpeed
	}
}

func (c *Config) normalizeDump() {
	if c.Dump.Skip <= 0 {
		c.Dump.Skip = defaultSkip
	}
	if c.Dump.CheckpointInterval <= 0 {
		c.Dump.CheckpointInterval = defaultCheckpointInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
