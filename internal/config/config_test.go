package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	v, cfg, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir default must not be empty")
	}
	if v.GetString("db") == "" {
		t.Error("db default must not be empty")
	}
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	_, cfg, err := Load(Flags{Host: "127.0.0.1", DB: "postgres://test/db", DataDir: "/tmp/sensorhost"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.DB != "postgres://test/db" {
		t.Errorf("DB = %q, want postgres://test/db", cfg.DB)
	}
	if cfg.DataDir != "/tmp/sensorhost" {
		t.Errorf("DataDir = %q, want /tmp/sensorhost", cfg.DataDir)
	}
}

func TestConfig_Addr(t *testing.T) {
	c := &Config{Host: "0.0.0.0", Port: 9090}
	if got, want := c.Addr(), "0.0.0.0:9090"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
