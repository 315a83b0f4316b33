package config

import (
	"fmt"

	"github.com/alanyoungcy/trapbot/internal/crypto"
)

// ResolveExchangeSecret resolves the exchange API secret, decrypting the
// encrypted secret file when one is configured. The plaintext is returned
// rather than stored back into the config so the resolved secret never ends
// up in a config dump.
func ResolveExchangeSecret(cfg *Config) (string, error) {
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Exchange.Secret,
		EncryptedSecretPath: cfg.Exchange.EncryptedSecretPath,
		Password:            cfg.Exchange.SecretPassword,
	})
	if err != nil {
		return "", fmt.Errorf("config: resolve exchange secret: %w", err)
	}
	return secret, nil
}

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Exchange = cfg.Exchange
	redact(&out.Exchange.Key)
	redact(&out.Exchange.Secret)
	redact(&out.Exchange.SecretPassword)

	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
