package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leasehub/leaseAuth/account"
)

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures and wrong algorithms.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when exp is at or before the current time.
	ErrTokenExpired = errors.New("token expired")
	// ErrClaimsInvalid is returned when a signed token carries unusable claims.
	ErrClaimsInvalid = errors.New("token claims invalid")
)

const minSecretBytes = 32

// Config controls token issuance and verification.
type Config struct {
	AccessTTL    time.Duration
	Secret       []byte
	Issuer       string
	MaxFutureIAT time.Duration

	// Now overrides the wall clock. Nil means time.Now.
	Now func() time.Time
}

// Manager mints and verifies access tokens. It is safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the wire shape of an access token.
type AccessClaims struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager. An empty or short secret is
// rejected so that a misconfigured process can not start serving.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a signing secret")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// CreateAccess signs a token for the given identity. iat is the current
// second and exp is exactly iat+AccessTTL.
func (j *Manager) CreateAccess(email string, role account.Role, status string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("%w: empty email", ErrClaimsInvalid)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %v", ErrClaimsInvalid, account.ErrUnknownRole)
	}
	if status == "" {
		return "", fmt.Errorf("%w: empty status", ErrClaimsInvalid)
	}

	issued := j.config.Now().Truncate(time.Second)
	claims := AccessClaims{
		Email:  email,
		Role:   string(role),
		Status: status,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(j.config.AccessTTL)),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.Secret)
}

// ParseAccess verifies the signature of tokenStr and then runs ValidateClaims.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims, err := j.parse(tokenStr, true)
	if err != nil {
		return nil, err
	}
	if err := ValidateClaims(claims, j.config.Now()); err != nil {
		return nil, err
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrClaimsInvalid)
		}
	}
	return claims, nil
}

// ParseAccessIgnoringExpiry verifies the signature only. Logout uses it to
// read exp from a token that may already have lapsed.
func (j *Manager) ParseAccessIgnoringExpiry(tokenStr string) (*AccessClaims, error) {
	return j.parse(tokenStr, false)
}

// Valid reports whether claims pass every check in ValidateClaims at now.
func Valid(claims *AccessClaims, now time.Time) bool {
	return ValidateClaims(claims, now) == nil
}

// ValidateClaims checks the issuance-independent rules: exp strictly after
// now, non-empty status and email, and a role from the closed set. Every
// rule is mandatory.
func ValidateClaims(claims *AccessClaims, now time.Time) error {
	if claims == nil {
		return ErrClaimsInvalid
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp", ErrClaimsInvalid)
	}
	if !claims.ExpiresAt.Time.After(now) {
		return ErrTokenExpired
	}
	if claims.Status == "" {
		return fmt.Errorf("%w: empty status", ErrClaimsInvalid)
	}
	if claims.Email == "" {
		return fmt.Errorf("%w: empty email", ErrClaimsInvalid)
	}
	if _, err := account.ParseRole(claims.Role); err != nil {
		return fmt.Errorf("%w: %v", ErrClaimsInvalid, err)
	}
	return nil
}

func (j *Manager) parse(tokenStr string, checkExpiry bool) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if !checkExpiry {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if !checkExpiry && claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrClaimsInvalid)
	}
	return claims, nil
}
