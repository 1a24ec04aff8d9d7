package config

import "fmt"

// Validate applies the cross-field constraints spec.md §6 implies.
func Validate(cfg *Config) error {
	if cfg.XRPServer == "" {
		return fmt.Errorf("config: XRPServer is required")
	}
	if cfg.Address == "" {
		return fmt.Errorf("config: Address is required")
	}
	if cfg.Secret == "" && cfg.SecretEnv == "" {
		return fmt.Errorf("config: Secret or SecretEnv is required")
	}
	if cfg.AssetScale != nil && cfg.CurrencyScale != nil {
		return fmt.Errorf("config: only one of AssetScale/CurrencyScale may be set")
	}
	if cfg.MaxFeePercent < 0 || cfg.MaxFeePercent > 1 {
		return fmt.Errorf("config: MaxFeePercent must be within [0,1]")
	}
	if cfg.ClaimIntervalMS < 0 {
		return fmt.Errorf("config: ClaimIntervalMS must be non-negative")
	}
	if cfg.WatcherIntervalS < 0 {
		return fmt.Errorf("config: WatcherIntervalS must be non-negative")
	}
	return nil
}
