package config

import "github.com/bingify/tokenvault/internal/domain"

// EnvCredentials maps the environment-sourced client pairs onto providers,
// for use as the credential repo's fallback when the database has no row.
func EnvCredentials(cfg Config) map[domain.Provider]domain.ProviderCredentials {
	return map[domain.Provider]domain.ProviderCredentials{
		domain.ProviderGoogle: {
			Provider:     domain.ProviderGoogle,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		},
		domain.ProviderTwitch: {
			Provider:     domain.ProviderTwitch,
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
		},
	}
}
