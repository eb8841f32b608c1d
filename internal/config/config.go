package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

type Config struct {
	DatabaseDSN        string
	ServerAddr         string
	SigningKey         []byte
	AllowedOrigins     []string
	AdminToken         string
	RedisAddr          string
	StatsCacheTTL      time.Duration
	UploadDir          string
	AssistantEndpoint  string
	AssistantModel     string
	AssistantApiKey    string
	ModerationEndpoint string
	ModerationApiKey   string
}

// Options holds the raw, unvalidated settings gathered from flags and the environment.
type Options struct {
	ServerAddr         string
	DatabaseDSN        string
	SigningKey         string
	AllowedOrigins     []string
	AdminToken         string
	RedisAddr          string
	StatsCacheTTL      time.Duration
	UploadDir          string
	AssistantEndpoint  string
	AssistantModel     string
	AssistantApiKey    string
	ModerationEndpoint string
	ModerationApiKey   string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if opts.UploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}

	signingKey, err := decodeSigningSecret(opts.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	ttl := opts.StatsCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Config{
		DatabaseDSN:        opts.DatabaseDSN,
		ServerAddr:         opts.ServerAddr,
		SigningKey:         signingKey,
		AllowedOrigins:     opts.AllowedOrigins,
		AdminToken:         opts.AdminToken,
		RedisAddr:          opts.RedisAddr,
		StatsCacheTTL:      ttl,
		UploadDir:          opts.UploadDir,
		AssistantEndpoint:  opts.AssistantEndpoint,
		AssistantModel:     opts.AssistantModel,
		AssistantApiKey:    opts.AssistantApiKey,
		ModerationEndpoint: opts.ModerationEndpoint,
		ModerationApiKey:   opts.ModerationApiKey,
	}, nil
}
