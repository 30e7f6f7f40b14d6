package config

import "encoding/json"

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg // Return original on marshal error
	}
	var copy Config
	if err := json.Unmarshal(data, &copy); err != nil {
		return cfg
	}

	copy.Slack.BotToken = maskString(copy.Slack.BotToken)
	copy.Slack.SigningSecret = maskString(copy.Slack.SigningSecret)
	copy.OpenAI.APIKey = maskString(copy.OpenAI.APIKey)
	copy.Feedback.Token = maskString(copy.Feedback.Token)

	return &copy
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
