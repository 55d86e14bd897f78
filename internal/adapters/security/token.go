package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

// JWTVerifier validates HMAC-signed bearer tokens issued by the external
// identity service. Login flows live outside this service; only verification
// happens here.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type tokenClaims struct {
	Tier string `json:"tier"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(token string) (ports.AuthClaims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return ports.AuthClaims{
		UserID: claims.Subject,
		Tier:   string(domain.ParseTier(claims.Tier)),
		Role:   claims.Role,
	}, nil
}
