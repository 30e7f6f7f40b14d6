package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3000,
			EventsPath:         "/slack/events",
			ReadTimeoutSeconds: 30,
		},
		OpenAI: OpenAIConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
		},
		Feedback: FeedbackConfig{
			Enabled:           true,
			APIBase:           "https://api.notion.com/v1",
			NotionVersion:     "2022-06-28",
			Category:          "gratitude",
			ValidatedCategory: "validated",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
