// Package vault protects the sensitive parts of the association store. A
// single random data key seals the records; each encryption profile holds
// its own wrapped copy of that key, so any one profile is enough to unlock.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
)

var (
	// ErrVaultLocked is returned when no profile could recover the data key.
	ErrVaultLocked = errors.New("vault locked: no encryption profile could recover the key")
	// ErrDuplicateProfile is returned when adding a profile that already exists.
	ErrDuplicateProfile = errors.New("encryption profile already exists")
)

// Vault holds the encryption profiles of one store and, once unlocked, the
// data key. Close wipes the key.
type Vault struct {
	profiles []db.Profile
	prompt   Prompter
	logger   *zap.Logger
	kdf      kdfParams

	dataKey []byte
}

// New returns a locked vault over the given profiles.
func New(profiles []db.Profile, prompt Prompter, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		profiles: append([]db.Profile(nil), profiles...),
		prompt:   prompt,
		logger:   logger,
		kdf:      defaultKDF(),
	}
}

// Profiles returns the current profile list.
func (v *Vault) Profiles() []db.Profile {
	return append([]db.Profile(nil), v.profiles...)
}

// HasProfiles reports whether any encryption profile is configured.
func (v *Vault) HasProfiles() bool { return len(v.profiles) > 0 }

// Unlocked reports whether the data key is available.
func (v *Vault) Unlocked() bool { return v.dataKey != nil }

// Unlock tries each profile in order until one recovers the data key.
func (v *Vault) Unlock() error {
	if v.dataKey != nil {
		return nil
	}
	for _, p := range v.profiles {
		spec := Spec{Kind: p.Kind, Argument: p.Argument}.String()
		key, err := v.unwrap(p)
		if err != nil {
			v.logger.Warn("encryption profile failed to unlock", logging.Profile(spec), zap.Error(err))
			continue
		}
		v.logger.Debug("vault unlocked", logging.Profile(spec))
		v.dataKey = key
		return nil
	}
	return ErrVaultLocked
}

func (v *Vault) unwrap(p db.Profile) ([]byte, error) {
	s, err := v.strategy(p.Kind)
	if err != nil {
		return nil, err
	}
	kek, err := s.Derive(p)
	if err != nil {
		return nil, err
	}
	defer zero(kek)
	key, err := openX(kek, p.WrappedKey, []byte(p.Kind))
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	return key, nil
}

// AddProfile enrolls a new profile. The first profile creates the data key;
// later ones wrap the key recovered from an existing profile, after the user
// confirms they have it at hand.
func (v *Vault) AddProfile(spec Spec) error {
	for _, p := range v.profiles {
		if p.Kind == spec.Kind && p.Argument == spec.Argument {
			return fmt.Errorf("%w: %s", ErrDuplicateProfile, spec)
		}
	}
	s, err := v.strategy(spec.Kind)
	if err != nil {
		return err
	}

	if v.dataKey == nil {
		if len(v.profiles) > 0 {
			if v.prompt != nil {
				if err := v.prompt.Confirm("There are existing encryption profiles. Make sure one of them can be unlocked, then press Enter to continue..."); err != nil {
					return fmt.Errorf("confirm: %w", err)
				}
			}
			if err := v.Unlock(); err != nil {
				return err
			}
		} else {
			key, err := randomBytes(keySize)
			if err != nil {
				return err
			}
			v.dataKey = key
		}
	}

	p := db.Profile{Kind: spec.Kind, Argument: spec.Argument}
	kek, err := s.Enroll(&p)
	if err != nil {
		return fmt.Errorf("enroll %s: %w", spec, err)
	}
	defer zero(kek)
	p.WrappedKey, err = sealX(kek, v.dataKey, []byte(p.Kind))
	if err != nil {
		return fmt.Errorf("wrap data key: %w", err)
	}
	v.profiles = append(v.profiles, p)
	v.logger.Info("encryption profile added", logging.Profile(spec.String()))
	return nil
}

// ClearProfiles drops every profile and the data key.
func (v *Vault) ClearProfiles() {
	v.profiles = nil
	v.Close()
}

// Seal encrypts one record of a collection.
func (v *Vault) Seal(collection string, record any) ([]byte, error) {
	if err := v.Unlock(); err != nil {
		return nil, err
	}
	plain, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	defer zero(plain)
	return sealX(v.dataKey, plain, []byte(collection))
}

// Open decrypts one record of a collection into out.
func (v *Vault) Open(collection string, ciphertext []byte, out any) error {
	if err := v.Unlock(); err != nil {
		return err
	}
	plain, err := openX(v.dataKey, ciphertext, []byte(collection))
	if err != nil {
		return fmt.Errorf("decrypt %s record: %w", collection, err)
	}
	defer zero(plain)
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("decode %s record: %w", collection, err)
	}
	return nil
}

// Close wipes the data key.
func (v *Vault) Close() {
	zero(v.dataKey)
	v.dataKey = nil
}
