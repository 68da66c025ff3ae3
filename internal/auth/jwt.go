package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ansilo-run/ansilo/internal/ansierr"
)

// JWTVerifier verifies bearer tokens against a configured issuer,
// audience and public key, producing JWTClaims for a Context.
type JWTVerifier struct {
	Issuer    string
	Audience  string
	publicKey any
	cache     *TokenCache
}

func NewJWTVerifier(issuer, audience string, publicKey any, cache *TokenCache) *JWTVerifier {
	return &JWTVerifier{Issuer: issuer, Audience: audience, publicKey: publicKey, cache: cache}
}

// Verify parses and validates a compact JWT, consulting the TokenCache
// first when one is configured so a transaction-pooled session doesn't
// re-verify the same bearer token on every Acquire.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (JWTClaims, error) {
	if v.cache != nil {
		if claims, ok, err := v.cache.Get(ctx, token); err == nil && ok {
			return claims, nil
		}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.publicKey, nil
	}, jwt.WithIssuer(v.Issuer), jwt.WithAudience(v.Audience), jwt.WithValidMethods([]string{"RS256", "ES256"}))
	if err != nil || !parsed.Valid {
		return JWTClaims{}, ansierr.Wrap(ansierr.KindAuthRejected, err, "jwt verification failed")
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return JWTClaims{}, ansierr.New(ansierr.KindAuthRejected, "jwt claims have unexpected shape")
	}

	claims := JWTClaims{
		Header: parsed.Header["alg"].(string),
		Claims: map[string]any(mapClaims),
		Token:  token,
	}

	if v.cache != nil {
		ttl := remainingTTL(mapClaims)
		_ = v.cache.Put(ctx, token, claims, ttl)
	}

	return claims, nil
}

func remainingTTL(claims jwt.MapClaims) time.Duration {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	d := time.Until(exp.Time)
	if d < 0 {
		return 0
	}
	return d
}

// TokenCache memoises JWT verification results keyed by a hash of the
// token, backed by Redis so it is shared across every bridge session
// rather than per-connection in-memory state — grounded on the
// grpcclient.Client's tokenExpiry in-memory TTL field, generalised to
// an external cache since the FDW bridge is multi-session and multiple
// goroutines must share one verification result.
type TokenCache struct {
	rdb *redis.Client
}

func NewTokenCache(addr string) *TokenCache {
	return &TokenCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "ansilo:jwt:" + hex.EncodeToString(sum[:])
}

func (c *TokenCache) Get(ctx context.Context, token string) (JWTClaims, bool, error) {
	raw, err := c.rdb.Get(ctx, tokenCacheKey(token)).Bytes()
	if err == redis.Nil {
		return JWTClaims{}, false, nil
	}
	if err != nil {
		return JWTClaims{}, false, err
	}
	var claims JWTClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return JWTClaims{}, false, err
	}
	return claims, true, nil
}

func (c *TokenCache) Put(ctx context.Context, token string, claims JWTClaims, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, tokenCacheKey(token), raw, ttl).Err()
}

func (c *TokenCache) Close() error {
	return c.rdb.Close()
}
