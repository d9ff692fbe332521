package password

var _ Hasher = (*Multi)(nil)

// Multi hashes with Argon2id and verifies both Argon2id and legacy bcrypt
// hashes. Every bcrypt hash needs an upgrade.
type Multi struct {
	primary *Argon2
	legacy  *Bcrypt
}

// NewMulti combines the primary scheme with an optional legacy verifier.
func NewMulti(primary *Argon2, legacy *Bcrypt) *Multi {
	return &Multi{primary: primary, legacy: legacy}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isArgon2Hash(encodedHash):
		return m.primary.Verify(password, encodedHash)
	case isBcryptHash(encodedHash) && m.legacy != nil:
		return m.legacy.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

func (m *Multi) NeedsUpgrade(encodedHash string) bool {
	if isArgon2Hash(encodedHash) {
		return m.primary.NeedsUpgrade(encodedHash)
	}
	return isBcryptHash(encodedHash) && m.legacy != nil
}
