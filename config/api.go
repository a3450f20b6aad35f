package config

import "errors"

// APIConfig configures the HTTP planning API.
type APIConfig struct {
	Addr string `json:"addr"`
	// Token is the bearer token required on every request. Empty disables
	// authentication.
	Token string `json:"token"`
	// MaxBodyBytes caps the size of posted instances.
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

func (c APIConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}
