package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Credentials holds the artifact store credentials. They are sourced
// from the process environment only, never from the config file.
type Credentials struct {
	SiteID      string `envconfig:"SITE_ID" required:"true"`
	AccessToken string `envconfig:"ACCESS_TOKEN" required:"true"`
}

// LoadCredentials reads NETLIFY_SITE_ID and NETLIFY_ACCESS_TOKEN.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := envconfig.Process("netlify", &c); err != nil {
		return Credentials{}, fmt.Errorf("artifact store credentials: %w", err)
	}
	return c, nil
}
