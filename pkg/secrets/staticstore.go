package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/OpenCHAMI/pductl/pkg/pdu"
)

// StaticStore answers every lookup with the same login.
type StaticStore struct {
	Username string
	Password string
}

// NewStaticStore creates a new StaticStore with the given username and password.
func NewStaticStore(username, password string) *StaticStore {
	return &StaticStore{
		Username: username,
		Password: password,
	}
}

func (s *StaticStore) secret() string {
	b, _ := json.Marshal(pdu.Credentials{Username: s.Username, Password: s.Password})
	return string(b)
}

func (s *StaticStore) GetSecretByID(secretID string) (string, error) {
	return s.secret(), nil
}

func (s *StaticStore) StoreSecretByID(secretID, secret string) error {
	return fmt.Errorf("static store is read-only")
}

func (s *StaticStore) ListSecrets() (map[string]string, error) {
	return map[string]string{DEFAULT_KEY: s.secret()}, nil
}

func (s *StaticStore) RemoveSecretByID(secretID string) error {
	return fmt.Errorf("static store is read-only")
}
