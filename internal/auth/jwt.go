// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/middleware"
)

const (
	KindDevice       = "device"
	defaultDeviceTTL = 365 * 24 * time.Hour
)

// DeviceTokens issues and verifies the ES256 tokens handed to paired TV
// apps. The public half is served as a JWKS so clients can verify offline.
type DeviceTokens struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	config     config.DeviceConfig
}

// LoadDeviceTokens reads the signing key from cfg.PrivateKeyPath,
// generating a fresh P-256 key there on first start.
func LoadDeviceTokens(cfg config.DeviceConfig) (*DeviceTokens, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if errors.Is(err, fs.ErrNotExist) {
		if genErr := GenerateKeyPair(cfg.PrivateKeyPath); genErr != nil {
			return nil, genErr
		}
		privateKeyPEM, err = os.ReadFile(cfg.PrivateKeyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return newDeviceTokens(privateKey, cfg)
}

func NewDeviceTokens(
	key *ecdsa.PrivateKey,
	cfg config.DeviceConfig,
) (*DeviceTokens, error) {
	privateKey, err := jwk.Import(key)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}
	return newDeviceTokens(privateKey, cfg)
}

func newDeviceTokens(
	privateKey jwk.Key,
	cfg config.DeviceConfig,
) (*DeviceTokens, error) {
	if setErr := privateKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	thumb, err := privateKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("key thumbprint: %w", err)
	}
	kid := base64.RawURLEncoding.EncodeToString(thumb)[:16]
	if setErr := privateKey.Set(jwk.KeyIDKey, kid); setErr != nil {
		return nil, fmt.Errorf("set key id: %w", setErr)
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
		return nil, fmt.Errorf("set key usage: %w", setErr)
	}

	publicJWKS := jwk.NewSet()
	if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
		return nil, fmt.Errorf("add key to set: %w", addErr)
	}

	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultDeviceTTL
	}

	return &DeviceTokens{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		config:     cfg,
	}, nil
}

// GenerateKeyPair writes a new PEM encoded P-256 private key.
func GenerateKeyPair(privateKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if dir := filepath.Dir(privateKeyPath); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
			return fmt.Errorf("create key dir: %w", mkErr)
		}
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	return nil
}

type DeviceClaims struct {
	UserID   string
	Tier     string
	DeviceID string
}

func (m *DeviceTokens) Issue(claims DeviceClaims) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(claims.DeviceID).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		Expiration(now.Add(m.config.TokenTTL)).
		NotBefore(now).
		Claim("tier", claims.Tier).
		Claim("type", KindDevice).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.privateKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

func (m *DeviceTokens) VerifyToken(
	_ context.Context,
	tokenString string,
) (*middleware.Claims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != KindDevice {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrTokenInvalid,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	var tier string
	if err := token.Get("tier", &tier); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing tier claim: %w",
			core.ErrTokenInvalid,
		)
	}

	return &middleware.Claims{
		Subject: subject,
		Kind:    KindDevice,
		Tier:    tier,
	}, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}

func (m *DeviceTokens) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body, err := json.Marshal(m.publicJWKS)
		if err != nil {
			core.JSONError(w, fmt.Errorf("encode jwks: %w", err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		//nolint:errcheck // best-effort response write
		_, _ = w.Write(body)
	}
}

func (m *DeviceTokens) KeyID() string {
	var kid string
	//nolint:errcheck // key ID always set during construction
	_ = m.privateKey.Get(jwk.KeyIDKey, &kid)
	return kid
}
