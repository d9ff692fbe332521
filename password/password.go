package password

import "errors"

var (
	// ErrMalformedHash is returned when a stored hash can not be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnsupportedHash is returned when no configured scheme recognises a hash.
	ErrUnsupportedHash = errors.New("unsupported password hash scheme")
	// ErrPasswordLength is returned by Hash for passwords outside the accepted byte range.
	ErrPasswordLength = errors.New("password length out of range")
)

const (
	MinPasswordBytes = 8
	// MaxPasswordBytes caps hashing cost for hostile inputs. bcrypt itself
	// only reads the first 72 bytes.
	MaxPasswordBytes = 1024
)

// Hasher is one password hashing scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	// NeedsUpgrade reports whether encodedHash should be replaced by a fresh
	// Hash of the same password.
	NeedsUpgrade(encodedHash string) bool
}

func checkLength(password string) error {
	if len(password) < MinPasswordBytes || len(password) > MaxPasswordBytes {
		return ErrPasswordLength
	}
	return nil
}
