package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// LocalSecretStore keeps encrypted secrets in a JSON file.
type LocalSecretStore struct {
	mu       sync.RWMutex
	sealer   sealer
	filename string
	Secrets  map[string]string `json:"secrets"`
}

func NewLocalSecretStore(masterKeyHex, filename string, create bool) (*LocalSecretStore, error) {
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("unable to decode master key from hex: %v", err)
	}

	secrets := make(map[string]string)
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		if !create {
			return nil, fmt.Errorf("file %s does not exist", filename)
		}
		if err := SaveSecrets(filename, secrets); err != nil {
			return nil, fmt.Errorf("unable to create file %s: %v", filename, err)
		}
	} else if secrets, err = loadSecrets(filename); err != nil {
		return nil, fmt.Errorf("unable to load secrets from file: %v", err)
	}

	return &LocalSecretStore{
		sealer:   sealer{masterKey: masterKey},
		filename: filename,
		Secrets:  secrets,
	}, nil
}

// GenerateMasterKey creates a 32-byte random key and returns it as a hex string.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// GetSecretByID decrypts the secret stored under secretID.
func (l *LocalSecretStore) GetSecretByID(secretID string) (string, error) {
	l.mu.RLock()
	encrypted, exists := l.Secrets[secretID]
	l.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("no secret found for %s", secretID)
	}
	return l.sealer.open(secretID, encrypted)
}

// StoreSecretByID encrypts secret and saves the store file.
func (l *LocalSecretStore) StoreSecretByID(secretID, secret string) error {
	encrypted, err := l.sealer.seal(secretID, []byte(secret))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.Secrets[secretID] = encrypted
	return SaveSecrets(l.filename, l.Secrets)
}

// ListSecrets returns a copy of the encrypted secrets keyed by ID.
func (l *LocalSecretStore) ListSecrets() (map[string]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	secretsCopy := make(map[string]string, len(l.Secrets))
	for key, value := range l.Secrets {
		secretsCopy[key] = value
	}
	return secretsCopy, nil
}

// RemoveSecretByID deletes secretID and saves the store file.
func (l *LocalSecretStore) RemoveSecretByID(secretID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.Secrets[secretID]; !exists {
		return fmt.Errorf("no secret found for %s", secretID)
	}
	delete(l.Secrets, secretID)
	return SaveSecrets(l.filename, l.Secrets)
}

// OpenStore opens (or creates) the store at filename using the master
// key from the MASTER_KEY environment variable.
func OpenStore(filename string) (SecretStore, error) {
	if filename == "" {
		return nil, fmt.Errorf("path to secret store required")
	}

	masterKey := os.Getenv("MASTER_KEY")
	if masterKey == "" {
		return nil, fmt.Errorf("MASTER_KEY environment variable not set")
	}

	store, err := NewLocalSecretStore(masterKey, filename, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create new local secret store: %v", err)
	}
	return store, nil
}

// Saves secrets back to the JSON file
func SaveSecrets(jsonFile string, store map[string]string) error {
	file, err := os.OpenFile(jsonFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(store)
}

func loadSecrets(jsonFile string) (map[string]string, error) {
	file, err := os.Open(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("unable to open secret file %s:%v", jsonFile, err)
	}
	defer file.Close()

	store := make(map[string]string)
	err = json.NewDecoder(file).Decode(&store)
	return store, err
}
