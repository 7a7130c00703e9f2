// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gestionstore/go-storesync/internal/auth"
)

// JWTAuth validates the bearer credentials issued by the login flow and turns
// them into an already-validated tenant Scope for the engine. The privilege
// distinction (tenant-bound vs platform-level) is decided here, at the
// boundary, never inside the reconciliation core.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a new JWT authenticator.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// JWTClaims carries the identity the login flow encodes into tokens.
type JWTClaims struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	TenantID string `json:"tenantId,omitempty"` // empty for platform-level users
	jwt.RegisteredClaims
}

// GenerateToken signs a token for the given user. tenantID is empty for
// super-admin accounts.
func (j *JWTAuth) GenerateToken(userID, role, tenantID string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		UserID:   userID,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "go-storesync",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT token and returns the claims.
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.UserID == "" {
			claims.UserID = claims.Subject
		}
		if claims.UserID == "" {
			return nil, fmt.Errorf("missing userId in token")
		}
		if claims.Role == "" {
			return nil, fmt.Errorf("missing role in token")
		}
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// Scope implements ScopeAuthenticator. Tenant-bound roles get their own tenant
// scope; a super-admin gets global scope, optionally narrowed to one tenant
// via the tenantId query parameter.
func (j *JWTAuth) Scope(r *http.Request) (Scope, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return Scope{}, err
	}

	if claims.Role == RoleSuperAdmin {
		if t := r.URL.Query().Get("tenantId"); t != "" {
			return Scope{TenantID: t}, nil
		}
		return Scope{Global: true}, nil
	}

	if claims.TenantID == "" {
		return Scope{}, fmt.Errorf("aucune boutique associée à ce compte")
	}
	return Scope{TenantID: claims.TenantID}, nil
}

func (j *JWTAuth) claimsFromRequest(r *http.Request) (*JWTClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, fmt.Errorf("bearer token required")
	}
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// Middleware returns an HTTP middleware that rejects unauthenticated requests
// and stores the identity in the request context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := j.claimsFromRequest(r)
		if err != nil {
			http.Error(w, "Token invalide", http.StatusUnauthorized)
			return
		}

		ctx := auth.SetAuthContext(r.Context(), claims.UserID, claims.Role, claims.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
