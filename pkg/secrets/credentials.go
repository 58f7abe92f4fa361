package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/rs/zerolog/log"
)

// GetCredentials returns the PDU login stored under id, falling back to
// the DEFAULT_KEY entry when id has none.
func GetCredentials(store SecretStore, id string) (pdu.Credentials, error) {
	var creds pdu.Credentials

	secret, err := store.GetSecretByID(id)
	if err != nil && id != DEFAULT_KEY {
		log.Debug().Str("id", id).Msg("specific credentials not found, falling back to default")
		secret, err = store.GetSecretByID(DEFAULT_KEY)
	}
	if err != nil {
		return creds, fmt.Errorf("no credentials for %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return creds, fmt.Errorf("failed to unmarshal credentials for %s: %w", id, err)
	}
	return creds, nil
}

// ValidCredentials reports whether secret is a JSON object with both a
// username and a password.
func ValidCredentials(secret string) bool {
	var fields map[string]string
	if err := json.Unmarshal([]byte(secret), &fields); err != nil {
		return false
	}
	_, hasUsername := fields["username"]
	_, hasPassword := fields["password"]
	return hasUsername && hasPassword
}
