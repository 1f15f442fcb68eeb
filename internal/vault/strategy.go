package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
)

// Profile kinds.
const (
	KindPassphrase = "passphrase"
	KindKeyFile    = "keyfile"
)

// PassphraseEnv overrides the interactive passphrase prompt.
const PassphraseEnv = "GIT_CREDENTIAL_KEEPASSXC_PASSPHRASE"

const keyFileInfo = "git-credential-keepassxc keyfile"

var ErrUnknownProfile = errors.New("unknown encryption profile")

// Spec names a profile as given on the command line: "passphrase" or
// "keyfile:PATH".
type Spec struct {
	Kind     string
	Argument string
}

// ParseSpec parses a profile descriptor.
func ParseSpec(s string) (Spec, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch kind {
	case KindPassphrase:
		if arg != "" {
			return Spec{}, fmt.Errorf("%w: passphrase takes no argument", ErrUnknownProfile)
		}
		return Spec{Kind: kind}, nil
	case KindKeyFile:
		if arg == "" {
			return Spec{}, fmt.Errorf("%w: keyfile requires a path", ErrUnknownProfile)
		}
		return Spec{Kind: kind, Argument: arg}, nil
	default:
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownProfile, s)
	}
}

func (s Spec) String() string {
	if s.Argument == "" {
		return s.Kind
	}
	return s.Kind + ":" + s.Argument
}

// Prompter asks the user for input on the controlling terminal.
type Prompter interface {
	Passphrase(prompt string) ([]byte, error)
	Confirm(prompt string) error
}

// Strategy turns a profile into the key that wraps the data key.
type Strategy interface {
	// Enroll prepares a new profile and returns its key encryption key.
	Enroll(p *db.Profile) ([]byte, error)
	// Derive recovers the key encryption key of an existing profile.
	Derive(p db.Profile) ([]byte, error)
}

func (v *Vault) strategy(kind string) (Strategy, error) {
	switch kind {
	case KindPassphrase:
		return passphraseStrategy{prompt: v.prompt, params: v.kdf}, nil
	case KindKeyFile:
		return keyFileStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, kind)
	}
}

type passphraseStrategy struct {
	prompt Prompter
	params kdfParams
}

func (s passphraseStrategy) read(confirm bool) ([]byte, error) {
	if env := os.Getenv(PassphraseEnv); env != "" {
		return []byte(env), nil
	}
	if s.prompt == nil {
		return nil, errors.New("no terminal available for passphrase prompt")
	}
	pass, err := s.prompt.Passphrase("Vault passphrase: ")
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	if len(pass) == 0 {
		return nil, errors.New("empty passphrase")
	}
	if confirm {
		again, err := s.prompt.Passphrase("Repeat passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		defer zero(again)
		if string(again) != string(pass) {
			zero(pass)
			return nil, errors.New("passphrases do not match")
		}
	}
	return pass, nil
}

func (s passphraseStrategy) Enroll(p *db.Profile) ([]byte, error) {
	salt, err := randomBytes(16)
	if err != nil {
		return nil, err
	}
	pass, err := s.read(true)
	if err != nil {
		return nil, err
	}
	defer zero(pass)
	p.Salt = salt
	p.KDFTime, p.KDFMemory, p.KDFThreads = s.params.Time, s.params.Memory, s.params.Threads
	return deriveArgon2(pass, salt, s.params), nil
}

func (s passphraseStrategy) Derive(p db.Profile) ([]byte, error) {
	pass, err := s.read(false)
	if err != nil {
		return nil, err
	}
	defer zero(pass)
	return deriveArgon2(pass, p.Salt, kdfParams{Time: p.KDFTime, Memory: p.KDFMemory, Threads: p.KDFThreads}), nil
}

type keyFileStrategy struct{}

func (keyFileStrategy) Enroll(p *db.Profile) ([]byte, error) {
	if _, err := os.Stat(p.Argument); errors.Is(err, os.ErrNotExist) {
		secret, err := randomBytes(keySize)
		if err != nil {
			return nil, err
		}
		defer zero(secret)
		if err := os.WriteFile(p.Argument, secret, 0o600); err != nil {
			return nil, fmt.Errorf("create key file: %w", err)
		}
	}
	salt, err := randomBytes(16)
	if err != nil {
		return nil, err
	}
	p.Salt = salt
	return keyFileStrategy{}.Derive(*p)
}

func (keyFileStrategy) Derive(p db.Profile) ([]byte, error) {
	secret, err := os.ReadFile(p.Argument)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	defer zero(secret)
	if len(secret) == 0 {
		return nil, errors.New("key file is empty")
	}
	return deriveHKDF(secret, p.Salt, []byte(keyFileInfo))
}
