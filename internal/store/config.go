package store

import (
	"fmt"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/vault"
)

// Config is the decoded store. Each collection is either entirely plaintext
// or entirely sealed; the accessors keep it that way.
type Config struct {
	Databases       []db.Association
	Callers         []db.Caller
	SealedDatabases [][]byte
	SealedCallers   [][]byte
	Profiles        []db.Profile
}

// DatabasesSealed reports whether the database associations are encrypted.
func (c *Config) DatabasesSealed() bool { return len(c.SealedDatabases) > 0 }

// CallersSealed reports whether the trusted callers are encrypted.
func (c *Config) CallersSealed() bool { return len(c.SealedCallers) > 0 }

// CountDatabases returns the number of associations without decrypting them.
func (c *Config) CountDatabases() int { return len(c.Databases) + len(c.SealedDatabases) }

// CountCallers returns the number of trusted callers without decrypting them.
func (c *Config) CountCallers() int { return len(c.Callers) + len(c.SealedCallers) }

// DatabaseList returns the associations, decrypting them when sealed.
func (c *Config) DatabaseList(v *vault.Vault) ([]db.Association, error) {
	if !c.DatabasesSealed() {
		return c.Databases, nil
	}
	out := make([]db.Association, 0, len(c.SealedDatabases))
	for _, ct := range c.SealedDatabases {
		var a db.Association
		if err := v.Open(db.CollectionDatabases, ct, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CallerList returns the trusted callers, decrypting them when sealed.
func (c *Config) CallerList(v *vault.Vault) ([]db.Caller, error) {
	if !c.CallersSealed() {
		return c.Callers, nil
	}
	out := make([]db.Caller, 0, len(c.SealedCallers))
	for _, ct := range c.SealedCallers {
		var caller db.Caller
		if err := v.Open(db.CollectionCallers, ct, &caller); err != nil {
			return nil, err
		}
		out = append(out, caller)
	}
	return out, nil
}

// AddDatabase adds an association, replacing the one with the same id in
// place. It is sealed when the collection is sealed or encrypt is set.
func (c *Config) AddDatabase(v *vault.Vault, a db.Association, encrypt bool) error {
	if !c.DatabasesSealed() && !encrypt {
		c.Databases = upsertAssociation(c.Databases, a)
		return nil
	}
	list, err := c.DatabaseList(v)
	if err != nil {
		return err
	}
	sealed, err := sealAll(v, db.CollectionDatabases, upsertAssociation(list, a))
	if err != nil {
		return err
	}
	c.SealedDatabases = sealed
	c.Databases = nil
	return nil
}

// upsertAssociation returns a copy of list with a replacing the entry that
// has the same id, or appended when there is none.
func upsertAssociation(list []db.Association, a db.Association) []db.Association {
	out := make([]db.Association, 0, len(list)+1)
	replaced := false
	for _, e := range list {
		if e.ID != a.ID {
			out = append(out, e)
			continue
		}
		if !replaced {
			out = append(out, a)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, a)
	}
	return out
}

// AddCaller appends a trusted caller. It is sealed when the collection is
// sealed or encrypt is set.
func (c *Config) AddCaller(v *vault.Vault, caller db.Caller, encrypt bool) error {
	if !c.CallersSealed() && !encrypt {
		c.Callers = append(c.Callers, caller)
		return nil
	}
	if _, err := c.EncryptCallers(v); err != nil {
		return err
	}
	ct, err := v.Seal(db.CollectionCallers, caller)
	if err != nil {
		return fmt.Errorf("seal caller: %w", err)
	}
	c.SealedCallers = append(c.SealedCallers, ct)
	return nil
}

// ClearCallers removes every trusted caller, sealed or not.
func (c *Config) ClearCallers() {
	c.Callers = nil
	c.SealedCallers = nil
}

// EncryptDatabases seals the plaintext associations and returns how many
// were sealed.
func (c *Config) EncryptDatabases(v *vault.Vault) (int, error) {
	sealed, err := sealAll(v, db.CollectionDatabases, c.Databases)
	if err != nil {
		return 0, err
	}
	c.SealedDatabases = append(c.SealedDatabases, sealed...)
	c.Databases = nil
	return len(sealed), nil
}

// EncryptCallers seals the plaintext callers and returns how many were sealed.
func (c *Config) EncryptCallers(v *vault.Vault) (int, error) {
	sealed, err := sealAll(v, db.CollectionCallers, c.Callers)
	if err != nil {
		return 0, err
	}
	c.SealedCallers = append(c.SealedCallers, sealed...)
	c.Callers = nil
	return len(sealed), nil
}

// DecryptDatabases turns the sealed associations back into plaintext.
func (c *Config) DecryptDatabases(v *vault.Vault) (int, error) {
	if !c.DatabasesSealed() {
		return 0, nil
	}
	list, err := c.DatabaseList(v)
	if err != nil {
		return 0, err
	}
	c.Databases = append(c.Databases, list...)
	c.SealedDatabases = nil
	return len(list), nil
}

// DecryptCallers turns the sealed callers back into plaintext.
func (c *Config) DecryptCallers(v *vault.Vault) (int, error) {
	if !c.CallersSealed() {
		return 0, nil
	}
	list, err := c.CallerList(v)
	if err != nil {
		return 0, err
	}
	c.Callers = append(c.Callers, list...)
	c.SealedCallers = nil
	return len(list), nil
}

func sealAll[T any](v *vault.Vault, collection string, records []T) ([][]byte, error) {
	var out [][]byte
	for _, r := range records {
		ct, err := v.Seal(collection, r)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", collection, err)
		}
		out = append(out, ct)
	}
	return out, nil
}
