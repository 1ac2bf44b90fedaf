package config

import (
	"encoding/json"
	"strconv"
	"strings"
)

// KakaoConfig is the resolved configuration for the KakaoTalk skill webhook.
type KakaoConfig struct {
	Port            int    `json:"port"`
	Path            string `json:"path"`
	BotName         string `json:"botName"`
	MaxPayloadBytes int    `json:"maxPayloadBytes"`
}

// Kakao defaults.
const (
	kakaoDefaultPort            = 9091
	kakaoDefaultPath            = "/kakao/skill"
	kakaoDefaultBotName         = "kakao-bot"
	kakaoDefaultMaxPayloadBytes = 1 << 20
)

// ResolveKakaoConfig resolves a raw channel section into a KakaoConfig,
// falling back to defaults for missing or malformed values.
func ResolveKakaoConfig(raw map[string]any) KakaoConfig {
	cfg := KakaoConfig{
		Port:            kakaoDefaultPort,
		Path:            kakaoDefaultPath,
		BotName:         kakaoDefaultBotName,
		MaxPayloadBytes: kakaoDefaultMaxPayloadBytes,
	}
	if raw == nil {
		return cfg
	}
	if port, ok := coerceInt(raw["port"]); ok && port > 0 && port <= 65535 {
		cfg.Port = port
	}
	if path, ok := raw["path"].(string); ok && strings.TrimSpace(path) != "" {
		cfg.Path = path
	}
	if name, ok := raw["botName"].(string); ok && strings.TrimSpace(name) != "" {
		cfg.BotName = name
	}
	if max, ok := coerceInt(raw["maxPayloadBytes"]); ok && max > 0 {
		cfg.MaxPayloadBytes = max
	}
	return cfg
}

// LineConfig is the resolved configuration for the LINE Messaging API
// channel. Secrets stay in the environment; config carries only the names.
type LineConfig struct {
	ChannelAccessTokenEnvVar string `json:"channelAccessTokenEnvVar"`
	ChannelSecretEnvVar      string `json:"channelSecretEnvVar"`
}

// LINE default env var names.
const (
	lineDefaultAccessTokenEnvVar = "LINE_CHANNEL_ACCESS_TOKEN"
	lineDefaultSecretEnvVar      = "LINE_CHANNEL_SECRET"
)

// ResolveLineConfig resolves a raw channel section into a LineConfig.
func ResolveLineConfig(raw map[string]any) LineConfig {
	cfg := LineConfig{
		ChannelAccessTokenEnvVar: lineDefaultAccessTokenEnvVar,
		ChannelSecretEnvVar:      lineDefaultSecretEnvVar,
	}
	if raw == nil {
		return cfg
	}
	if name, ok := raw["channelAccessTokenEnvVar"].(string); ok && strings.TrimSpace(name) != "" {
		cfg.ChannelAccessTokenEnvVar = name
	}
	if name, ok := raw["channelSecretEnvVar"].(string); ok && strings.TrimSpace(name) != "" {
		cfg.ChannelSecretEnvVar = name
	}
	return cfg
}

// coerceInt accepts the integer shapes YAML and JSON decoders produce.
// Strings that do not parse as integers are rejected.
func coerceInt(v any) (int, bool) {
	switch typed := v.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case json.Number:
		n, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
