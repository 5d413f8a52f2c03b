package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "report-download"

var (
	// ErrInvalidDownloadToken covers malformed, tampered and foreign tokens.
	ErrInvalidDownloadToken = errors.New("invalid download token")
	// ErrDownloadTokenExpired is returned when a valid token is past its expiry.
	ErrDownloadTokenExpired = errors.New("download token expired")
)

type downloadClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// DownloadSigner issues HS256 tokens that authorise anonymous download of one
// generated report file. The job ID travels as subject, the storage path as a
// private claim.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner constructs a signer. A non-positive ttl defaults to 24h.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token for the job's file and its expiry.
func (s *DownloadSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("job id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}

	now := s.now()
	expiresAt := jwt.NewNumericDate(now.Add(s.ttl))
	claims := downloadClaims{
		Path: relPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   jobID,
			Audience:  jwt.ClaimStrings{downloadAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return token, expiresAt.Time, nil
}

// Parse verifies the signature and returns the embedded job and path. The
// cleanup routine passes allowExpired to locate files of lapsed tokens.
func (s *DownloadSigner) Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	claims := &downloadClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDownloadToken, err)
	}
	if claims.Subject == "" || claims.Path == "" || claims.ExpiresAt == nil || !audienceMatches(claims.Audience) {
		return "", "", time.Time{}, ErrInvalidDownloadToken
	}

	expiresAt = claims.ExpiresAt.Time
	if !allowExpired && !s.now().Before(expiresAt) {
		return "", "", time.Time{}, ErrDownloadTokenExpired
	}
	return claims.Subject, claims.Path, expiresAt, nil
}

func audienceMatches(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if a == downloadAudience {
			return true
		}
	}
	return false
}
