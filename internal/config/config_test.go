package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestValidateCooldownBelowAcquireCeiling(t *testing.T) {
	cfg := DefaultConfig()

	cfg.CooldownMS = cfg.AcquireTimeoutMS
	if err := cfg.Validate(); err == nil {
		t.Error("cooldown at the acquire ceiling must be rejected")
	}

	cfg.CooldownMS = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative cooldown must be rejected")
	}
}
