package keepassxc

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshake is returned when the public key exchange fails.
	ErrHandshake = errors.New("keepassxc: key exchange failed")
	// ErrProtocol is returned for malformed or undecryptable messages.
	ErrProtocol = errors.New("keepassxc: protocol error")
	// ErrRejected is returned when a reply carries success=false without an error code.
	ErrRejected = errors.New("keepassxc: request rejected")
)

// Error codes sent by KeePassXC in the errorCode field.
const (
	CodeDatabaseNotOpened        = "1"
	CodeDatabaseHashNotReceived  = "2"
	CodeClientPublicKeyNotFound  = "3"
	CodeCannotDecryptMessage     = "4"
	CodeTimeoutOrNotConnected    = "5"
	CodeActionCancelledOrDenied  = "6"
	CodePublicKeyNotFound        = "7"
	CodeAssociationFailed        = "8"
	CodeKeyChangeFailed          = "9"
	CodeEncryptionKeyUnrecognize = "10"
	CodeNoSavedDatabasesFound    = "11"
	CodeIncorrectAction          = "12"
	CodeEmptyMessageReceived     = "13"
	CodeNoURLProvided            = "14"
	CodeNoLoginsFound            = "15"
)

// Error is an error reply from KeePassXC.
type Error struct {
	Action  string
	Message string
	Code    string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code != "" {
		return fmt.Sprintf("keepassxc %s: %s (code %s)", e.Action, msg, e.Code)
	}
	return fmt.Sprintf("keepassxc %s: %s", e.Action, msg)
}

// IsDatabaseLocked reports whether the reply says no database is open.
func (e *Error) IsDatabaseLocked() bool {
	return e.Code == CodeDatabaseNotOpened
}

// IsDatabaseLocked reports whether err is a KeePassXC "database not opened" error.
func IsDatabaseLocked(err error) bool {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.IsDatabaseLocked()
	}
	return false
}

// IsNoLoginsFound reports whether err is a KeePassXC "no logins found" error.
func IsNoLoginsFound(err error) bool {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Code == CodeNoLoginsFound
	}
	return false
}
