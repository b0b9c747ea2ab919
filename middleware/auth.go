package middleware

import (
	"Gamebuddies/utils/apperr"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	identityKey    = "identity"
	sessionUserKey = "user_id"
	sessionRoleKey = "role"
)

// Identity is who a bearer credential belongs to
type Identity struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

// IdentityResolver turns a bearer credential into an identity. Issuing
// credentials is somebody else's job.
type IdentityResolver interface {
	Resolve(token string) (Identity, error)
}

// Claims is the payload of the tokens issued by the auth service
type Claims struct {
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTIdentity resolves HS256 tokens signed with a shared secret
type JWTIdentity struct {
	secret []byte
}

func NewJWTIdentity(secret string) *JWTIdentity {
	return &JWTIdentity{secret: []byte(secret)}
}

func notIdentified(reason string, err error) *apperr.Error {
	e := apperr.Forbidden(apperr.CodeNotIdentified, reason)
	e.Err = err
	return e
}

// Resolve accepts the raw token or an "Authorization" header value
func (j *JWTIdentity) Resolve(token string) (Identity, error) {
	raw, _ := BearerToken(token)
	if raw == "" {
		return Identity{}, notIdentified("missing bearer token", nil)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, notIdentified("invalid token", err)
	}
	if claims.Subject == "" {
		return Identity{}, notIdentified("token has no subject", errors.New("empty sub claim"))
	}
	role := claims.Role
	if role == "" {
		role = "user"
	}
	return Identity{UserID: claims.Subject, Role: role, DisplayName: claims.Name}, nil
}

// Issue signs a token for userID. Used by tests and local tooling.
func (j *JWTIdentity) Issue(userID, role, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// BearerToken strips an optional "Bearer " prefix
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:]), true
	}
	return header, false
}

// AuthRequired accepts either a bearer token or a cookie session created by
// SaveSession. The resolved identity is available through IdentityFrom.
func AuthRequired(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			id, err := resolver.Resolve(header)
			if err != nil {
				e := apperr.As(err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": e.Code, "message": e.Message})
				return
			}
			c.Set(identityKey, id)
			c.Next()
			return
		}

		session := sessions.Default(c)
		user, _ := session.Get(sessionUserKey).(string)
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": apperr.CodeNotIdentified, "message": "unauthorized"})
			return
		}
		role, _ := session.Get(sessionRoleKey).(string)
		c.Set(identityKey, Identity{UserID: user, Role: role})
		c.Next()
	}
}

// SaveSession stores the identity in the cookie session
func SaveSession(c *gin.Context, id Identity) error {
	session := sessions.Default(c)
	session.Set(sessionUserKey, id.UserID)
	session.Set(sessionRoleKey, id.Role)
	return session.Save()
}

func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
