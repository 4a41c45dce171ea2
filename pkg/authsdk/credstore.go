package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	credentialsBucket = []byte("credentials")
	credentialsKey    = []byte("current")

	// ErrNoCredentials is returned when no credentials have been saved.
	ErrNoCredentials = errors.New("no stored credentials")
)

// Credentials is the persisted form of a session, written by the CLI so a
// login survives between runs.
type Credentials struct {
	Username     string    `json:"username"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// CredentialStore persists session credentials in a local bbolt file.
type CredentialStore struct {
	db *bbolt.DB
}

// OpenCredentialStore opens (or creates) a credential store at path.
func OpenCredentialStore(path string) (*CredentialStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	return &CredentialStore{db: db}, nil
}

// Close closes the underlying database.
func (cs *CredentialStore) Close() error {
	if cs.db == nil {
		return nil
	}
	return cs.db.Close()
}

// Save stores the credentials, replacing any previous ones.
func (cs *CredentialStore) Save(creds Credentials) error {
	creds.SavedAt = time.Now()

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	return cs.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(credentialsBucket)
		if bucket == nil {
			return fmt.Errorf("credentials bucket not found")
		}
		return bucket.Put(credentialsKey, data)
	})
}

// Load retrieves the stored credentials. Returns ErrNoCredentials when no
// login has been persisted.
func (cs *CredentialStore) Load() (*Credentials, error) {
	var creds *Credentials

	err := cs.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(credentialsBucket)
		if bucket == nil {
			return fmt.Errorf("credentials bucket not found")
		}

		data := bucket.Get(credentialsKey)
		if data == nil {
			return ErrNoCredentials
		}

		creds = &Credentials{}
		return json.Unmarshal(data, creds)
	})
	if err != nil {
		return nil, err
	}

	return creds, nil
}

// Delete removes the stored credentials (logout).
func (cs *CredentialStore) Delete() error {
	return cs.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(credentialsBucket)
		if bucket == nil {
			return fmt.Errorf("credentials bucket not found")
		}
		return bucket.Delete(credentialsKey)
	})
}
