package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

// Token times are whole milliseconds. NumericDate goes through a float64, so
// claims are encoded at microsecond precision and rounded back on parse.
func init() {
	jwt.TimePrecision = time.Microsecond
}

func msTime(d *jwt.NumericDate) time.Time {
	return d.Time.Round(time.Millisecond)
}

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

type Claims struct {
	AccountID string
	ID        string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Token struct {
	Raw    string
	Claims Claims
}

type Pair struct {
	Access  Token
	Refresh Token
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Use Kind `json:"token_use"`
}

// Service signs and verifies access and refresh tokens. Each kind has its own
// key, so a token of one kind never verifies as the other. Service is
// stateless and safe for concurrent use.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{cfg: cfg}
}

func (s *Service) IssueAccess(accountID string) (Token, error) {
	return s.issue(accountID, KindAccess)
}

func (s *Service) IssueRefresh(accountID string) (Token, error) {
	return s.issue(accountID, KindRefresh)
}

func (s *Service) IssuePair(accountID string) (Pair, error) {
	access, err := s.IssueAccess(accountID)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.IssueRefresh(accountID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Verify checks signature, kind and expiry of raw. It fails with an
// InvalidSignature or Expired error and never consults any store.
func (s *Service) Verify(raw string, kind Kind) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	var jc jwtClaims
	_, err := jwt.ParseWithClaims(raw, &jc, func(t *jwt.Token) (any, error) {
		return s.key(kind), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, autherr.Wrap(autherr.KindExpired, err, "")
		}
		return Claims{}, autherr.Wrap(autherr.KindInvalidSignature, err, "")
	}
	if jc.Use != kind || jc.Subject == "" || jc.IssuedAt == nil {
		return Claims{}, autherr.Wrap(autherr.KindInvalidSignature,
			fmt.Errorf("unexpected token use %q", jc.Use), "")
	}

	return Claims{
		AccountID: jc.Subject,
		ID:        jc.ID,
		Kind:      jc.Use,
		IssuedAt:  msTime(jc.IssuedAt),
		ExpiresAt: msTime(jc.ExpiresAt),
	}, nil
}

func (s *Service) issue(accountID string, kind Kind) (Token, error) {
	if accountID == "" {
		return Token{}, errors.New("token subject must not be empty")
	}
	now := s.cfg.Now().Truncate(time.Millisecond)
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(s.ttl(kind)))

	jc := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  iat,
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
		Use: kind,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(s.key(kind))
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return Token{
		Raw: raw,
		Claims: Claims{
			AccountID: accountID,
			ID:        jc.ID,
			Kind:      kind,
			IssuedAt:  iat.Time,
			ExpiresAt: exp.Time,
		},
	}, nil
}

func (s *Service) key(kind Kind) []byte {
	if kind == KindRefresh {
		return s.cfg.RefreshSecret
	}
	return s.cfg.AccessSecret
}

func (s *Service) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.cfg.RefreshTTL
	}
	return s.cfg.AccessTTL
}
