package config

// DefaultConfig returns the built-in server defaults. User YAML is
// merged on top; unset fields keep these values.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:        "0.0.0.0",
			Port:        8090,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		CatalogPath: "models.yaml",
		Driver: &DriverConfig{
			Engine:         "docker",
			TimeoutSeconds: 120,
		},
		Probe: &ProbeConfig{
			TimeoutSeconds: 2,
		},
		Monitor: &MonitorConfig{
			IntervalSeconds:  15,
			FailureThreshold: 2,
		},
		Memory: &MemoryConfig{
			MinFreeGB:      8,
			SafetyMarginGB: 2,
		},
		Chat: &ChatConfig{
			SearchURL:               "http://localhost:8085",
			SandboxURL:              "http://localhost:8060",
			ModelTimeoutSeconds:     1800,
			SearchTimeoutSeconds:    30,
			SandboxTimeoutSeconds:   60,
			MaxToolIterations:       10,
			ToolResultMaxChars:      3000,
			MaxOutputTokensCap:      4096,
			CompactKeepLast:         6,
			DefaultMaxContextTokens: 8192,
		},
		Events: &EventsConfig{
			WriteTimeoutSeconds: 10,
		},
	}
}
