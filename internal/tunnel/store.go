package tunnel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("tunnel not found")

// SecretStore keeps key material out of tunnels.json.
// Get returns an empty string when nothing is stored.
type SecretStore interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Store persists descriptors as a JSON map keyed by tunnel id.
// Private and preshared keys live in the SecretStore; the file only ever
// holds empty strings for them.
type Store struct {
	path    string
	secrets SecretStore
	lock    *flock.Flock
}

func NewStore(path string, secrets SecretStore) *Store {
	return &Store{
		path:    path,
		secrets: secrets,
		lock:    flock.New(path + ".lock"),
	}
}

// Path returns the location of the tunnels file.
func (s *Store) Path() string {
	return s.path
}

// NewID returns a fresh tunnel id.
func NewID() string {
	return uuid.NewString()
}

// List returns all tunnels sorted by name, then id.
func (s *Store) List() ([]Descriptor, error) {
	if err := s.rlock(); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	tunnels, err := s.read()
	if err != nil {
		return nil, err
	}

	list := make([]Descriptor, 0, len(tunnels))
	for _, d := range tunnels {
		if err := s.loadSecrets(&d); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

// Get returns the tunnel with the given id, secrets included.
func (s *Store) Get(id string) (Descriptor, error) {
	if err := s.rlock(); err != nil {
		return Descriptor{}, err
	}
	defer s.lock.Unlock()

	tunnels, err := s.read()
	if err != nil {
		return Descriptor{}, err
	}
	d, ok := tunnels[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.loadSecrets(&d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Save validates and stores d, assigning an id when it has none.
func (s *Store) Save(d Descriptor) (Descriptor, error) {
	if d.ID == "" {
		d.ID = NewID()
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}

	if err := s.wlock(); err != nil {
		return Descriptor{}, err
	}
	defer s.lock.Unlock()

	tunnels, err := s.read()
	if err != nil {
		return Descriptor{}, err
	}

	if err := s.secrets.Set(privateKeyName(d.ID), d.Interface.PrivateKey); err != nil {
		return Descriptor{}, fmt.Errorf("failed to store private key: %w", err)
	}
	if d.Peer.PresharedKey != "" {
		if err := s.secrets.Set(presharedKeyName(d.ID), d.Peer.PresharedKey); err != nil {
			return Descriptor{}, fmt.Errorf("failed to store preshared key: %w", err)
		}
	} else if err := s.secrets.Delete(presharedKeyName(d.ID)); err != nil {
		return Descriptor{}, fmt.Errorf("failed to clear preshared key: %w", err)
	}

	stored := d
	stored.Interface.PrivateKey = ""
	stored.Peer.PresharedKey = ""
	tunnels[d.ID] = stored

	if err := s.write(tunnels); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Delete removes the tunnel and its secrets.
func (s *Store) Delete(id string) error {
	if err := s.wlock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	tunnels, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := tunnels[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(tunnels, id)

	if err := s.write(tunnels); err != nil {
		return err
	}

	// Secrets are removed after the file so a failure here leaves no
	// descriptor pointing at missing keys.
	if err := s.secrets.Delete(privateKeyName(id)); err != nil {
		return fmt.Errorf("failed to delete private key: %w", err)
	}
	if err := s.secrets.Delete(presharedKeyName(id)); err != nil {
		return fmt.Errorf("failed to delete preshared key: %w", err)
	}
	return nil
}

func (s *Store) loadSecrets(d *Descriptor) error {
	priv, err := s.secrets.Get(privateKeyName(d.ID))
	if err != nil {
		return fmt.Errorf("failed to load private key for %s: %w", d.ID, err)
	}
	psk, err := s.secrets.Get(presharedKeyName(d.ID))
	if err != nil {
		return fmt.Errorf("failed to load preshared key for %s: %w", d.ID, err)
	}
	d.Interface.PrivateKey = priv
	d.Peer.PresharedKey = psk
	return nil
}

func (s *Store) read() (map[string]Descriptor, error) {
	tunnels := make(map[string]Descriptor)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return tunnels, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tunnels file: %w", err)
	}
	if len(data) == 0 {
		return tunnels, nil
	}
	if err := json.Unmarshal(data, &tunnels); err != nil {
		return nil, fmt.Errorf("failed to parse tunnels file: %w", err)
	}
	return tunnels, nil
}

// write uses temp file + rename so watchers never observe a partial file.
func (s *Store) write(tunnels map[string]Descriptor) error {
	data, err := json.MarshalIndent(tunnels, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tunnels: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write tunnels temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename tunnels file: %w", err)
	}
	return nil
}

func (s *Store) rlock() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create tunnels directory: %w", err)
	}
	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("failed to lock tunnels file: %w", err)
	}
	return nil
}

func (s *Store) wlock() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create tunnels directory: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock tunnels file: %w", err)
	}
	return nil
}

func privateKeyName(id string) string {
	return id + "/private_key"
}

func presharedKeyName(id string) string {
	return id + "/preshared_key"
}
