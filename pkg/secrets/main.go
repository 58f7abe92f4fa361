// Package secrets stores PDU console logins, encrypted at rest, keyed by
// the endpoint name of each PDU.
package secrets

// DEFAULT_KEY holds the login used for endpoints without their own entry.
const DEFAULT_KEY = "default"

type SecretStore interface {
	GetSecretByID(secretID string) (string, error)
	StoreSecretByID(secretID, secret string) error
	ListSecrets() (map[string]string, error)
	RemoveSecretByID(secretID string) error
}
