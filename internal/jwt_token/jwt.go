package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"stablegate/internal/platform/middleware"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

// Claims represents the JWT claims of a capability token. The token proves
// which ledger address is calling and which capabilities it holds; it is
// issued out-of-band by the operator of the gateway.
type Claims struct {
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// JWTService handles capability token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateCapabilityToken issues a token for the given actor. Used by
// operator tooling and tests; the gateway itself only validates.
func (s *JWTService) GenerateCapabilityToken(
	address domain.Address,
	capabilities []domain.Capability,
	expiresIn time.Duration) (string, error) {
	caps := make([]string, len(capabilities))
	for i, c := range capabilities {
		caps[i] = string(c)
	}
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address:      address.String(),
		Capabilities: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateToken parses and verifies a capability token, returning the actor
// claims the middleware needs.
func (s *JWTService) ValidateToken(tokenString string) (*middleware.ActorClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return &middleware.ActorClaims{
		Address:      claims.Address,
		Capabilities: claims.Capabilities,
	}, nil
}
