package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Hostname != "localhost" {
		t.Errorf("expected hostname 'localhost', got %q", cfg.Hostname)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}
	if cfg.Timeouts.Connect != "30s" {
		t.Errorf("expected connect timeout '30s', got %q", cfg.Timeouts.Connect)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("expected metrics disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default", modify: func(c *Config) {}, wantErr: false},
		{name: "empty hostname", modify: func(c *Config) { c.Hostname = "" }, wantErr: true},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "bad connect timeout", modify: func(c *Config) { c.Timeouts.Connect = "soon" }, wantErr: true},
		{name: "bad idle timeout", modify: func(c *Config) { c.Timeouts.Idle = "later" }, wantErr: true},
		{name: "metrics enabled missing address", modify: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, wantErr: true},
		{name: "metrics enabled with address and path", modify: func(c *Config) {
			c.Metrics.Enabled = true
		}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestTimeoutDefaults(t *testing.T) {
	tc := TimeoutsConfig{}
	if tc.ConnectTimeout().String() != "30s" {
		t.Errorf("expected default connect timeout 30s, got %s", tc.ConnectTimeout())
	}
	if tc.IdleTimeout().String() != "10m0s" {
		t.Errorf("expected default idle timeout 10m0s, got %s", tc.IdleTimeout())
	}

	tc = TimeoutsConfig{Connect: "garbage", Idle: "garbage"}
	if tc.ConnectTimeout().String() != "30s" {
		t.Errorf("expected fallback connect timeout on parse error, got %s", tc.ConnectTimeout())
	}
	if tc.IdleTimeout().String() != "10m0s" {
		t.Errorf("expected fallback idle timeout on parse error, got %s", tc.IdleTimeout())
	}
}
