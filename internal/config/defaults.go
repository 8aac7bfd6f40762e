package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:             "info",
			LogFormat:            "text",
			MaxConcurrentUpdates: 8,
			BusBuffer:            100,
		},
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
		Webhook: WebhookConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Path: "/webhook",
		},
		Database: DatabaseConfig{
			Driver: "",
			DSN:    "~/.shortsbot/users.db",
		},
		Media: MediaConfig{
			MaxUploadMB:    50,
			HTTPTimeout:    60,
			UseProxy:       false,
			NoProxy:        []string{"localhost", "127.0.0.1"},
			PreferMimeType: "video/mp4",
		},
		Pipeline: PipelineConfig{
			StatusDeleteDelayMs: 3000,
			DeliveryTimeoutMs:   7000,
			LinksPerMinute:      10,
			LinkBurst:           5,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Addr:    "127.0.0.1:9090",
		},
	}
}
