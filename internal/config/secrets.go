package config

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

const keyringPrefix = "keyring:"

// resolveSecrets replaces keyring:<service>/<account> references in credential fields.
func resolveSecrets(cfg *Config) error {
	for _, list := range [][]OutputDescriptor{cfg.Checkin.Outputs, cfg.Recipient.LastSignalOutputs} {
		for i := range list {
			if e := list[i].Email; e != nil {
				if err := resolveSecret(&e.Password); err != nil {
					return err
				}
			}
			if m := list[i].Messenger; m != nil {
				if err := resolveSecret(&m.AccessToken); err != nil {
					return err
				}
			}
		}
	}
	if cfg.Activity != nil {
		if err := resolveSecret(&cfg.Activity.ClientSecret); err != nil {
			return err
		}
	}
	return nil
}

func resolveSecret(field *string) error {
	ref, ok := strings.CutPrefix(*field, keyringPrefix)
	if !ok {
		return nil
	}
	service, account, ok := strings.Cut(ref, "/")
	if !ok || service == "" || account == "" {
		return errors.ConfigError(fmt.Sprintf("invalid keyring reference %q (want keyring:<service>/<account>)", *field)).Build()
	}
	secret, err := keyring.Get(service, account)
	if err != nil {
		return errors.ConfigError("failed to read secret from keyring").
			WithCause(err).
			WithContext("service", service).
			WithContext("account", account).
			Build()
	}
	*field = secret
	return nil
}
