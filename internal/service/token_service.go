package service

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"materialflow/internal/config"
	"materialflow/internal/domain"
)

const (
	audienceFeedback = "feedback"
	audienceAPI      = "api"
)

// TokenClaims is the JWT payload for feedback links and API clients.
type TokenClaims struct {
	jwt.RegisteredClaims
	DocumentID string `json:"document_id,omitempty"`
}

// TokenService issues and validates signed tokens.
type TokenService interface {
	// Sign issues a feedback token bound to one document.
	Sign(documentID string) (string, error)
	ParseFeedbackToken(tokenString string) (*TokenClaims, error)
	IssueServiceToken(clientID string, ttl time.Duration) (string, error)
	ValidateServiceToken(tokenString string) (*TokenClaims, error)
}

type tokenService struct {
	cfg config.FeedbackConfig
	now func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg config.FeedbackConfig) TokenService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 30 * 24 * time.Hour
	}
	return &tokenService{cfg: cfg, now: time.Now}
}

func (s *tokenService) Sign(documentID string) (string, error) {
	return s.issue(audienceFeedback, documentID, documentID, s.cfg.Expiry)
}

func (s *tokenService) ParseFeedbackToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.parse(tokenString, audienceFeedback)
	if err != nil || claims.DocumentID == "" {
		return nil, domain.ErrFeedbackTokenInvalid
	}
	return claims, nil
}

func (s *tokenService) IssueServiceToken(clientID string, ttl time.Duration) (string, error) {
	return s.issue(audienceAPI, clientID, "", ttl)
}

func (s *tokenService) ValidateServiceToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.parse(tokenString, audienceAPI)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

func (s *tokenService) issue(audience, subject, documentID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{audience},
		},
		DocumentID: documentID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", audience, err)
	}
	return signed, nil
}

func (s *tokenService) parse(tokenString, audience string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithIssuer(s.cfg.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	aud, _ := claims.GetAudience()
	if !slices.Contains(aud, audience) {
		return nil, fmt.Errorf("token audience %v does not include %q", aud, audience)
	}
	return claims, nil
}
