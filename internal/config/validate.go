package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDrive(); err != nil {
		return err
	}
	if err := c.validateDump(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDrive() error {
	if c.Drive.Device == "" {
		return errors.New("drive.device must be set")
	}
	if c.Drive.MaxBlocks < 0 || c.Drive.MaxBlocks > 65535 {
		return errors.New("drive.max_blocks must be between 0 and 65535")
	}
	if c.Drive.Speed < 0 || c.Drive.Speed > 0xFFFF {
		return errors.New("drive.speed must be between 1 and 65535")
	}
	if c.Drive.AudioSpeed < 0 || c.Drive.AudioSpeed > 0xFFFF {
		return errors.New("drive.audio_speed must be between 1 and 65535")
	}
	// A drive offset beyond a few thousand samples means a misconfigured value.
	const maxOffset = 64 * 2352
	if c.Drive.OffsetBytes < -maxOffset || c.Drive.OffsetBytes > maxOffset {
		return fmt.Errorf("drive.offset_bytes must be within ±%d", maxOffset)
	}
	switch c.Drive.Subchannel {
	case "auto", "none", "q16", "raw":
	default:
		return fmt.Errorf("drive.subchannel must be one of auto, none, q16, raw (got %q)", c.Drive.Subchannel)
	}
	return nil
}

func (c *Config) validateDump() error {
	if c.Dump.Skip < 1 {
		return errors.New("dump.skip must be at least 1")
	}
	if c.Dump.RetryPasses < 0 {
		return errors.New("dump.retry_passes must be zero or positive")
	}
	if c.Dump.CheckpointInterval < 1 {
		return errors.New("dump.checkpoint_interval must be at least 1")
	}
	if c.Dump.LeadOutSectors < 0 {
		return errors.New("dump.lead_out_sectors must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	return nil
}
