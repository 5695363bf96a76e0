package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey 身份提供方公开的签名公钥（JWK）
type SigningKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"` // RSA 模数（base64url）
	E   string `json:"e"` // RSA 指数（base64url）
}

// KeyCache 签名公钥缓存接口
// 以显式注入的带 TTL 缓存替代全局可变状态；转录流程不依赖它
type KeyCache interface {
	// Get 返回缓存的公钥集合，过期时自动刷新
	Get(ctx context.Context) ([]SigningKey, error)

	// Refresh 强制重新拉取
	Refresh(ctx context.Context) error
}

// HTTPKeyCache 从身份提供方的 JWKS 端点拉取公钥并按 TTL 缓存
type HTTPKeyCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	keys      []SigningKey
	fetchedAt time.Time
}

// NewHTTPKeyCache 创建 JWKS 公钥缓存
func NewHTTPKeyCache(url string, ttl time.Duration) *HTTPKeyCache {
	return &HTTPKeyCache{
		url: url,
		ttl: ttl,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (kc *HTTPKeyCache) Get(ctx context.Context) ([]SigningKey, error) {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.keys != nil && time.Since(kc.fetchedAt) < kc.ttl {
		return kc.keys, nil
	}
	return kc.fetchLocked(ctx)
}

func (kc *HTTPKeyCache) Refresh(ctx context.Context) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	_, err := kc.fetchLocked(ctx)
	return err
}

func (kc *HTTPKeyCache) fetchLocked(ctx context.Context) ([]SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", kc.url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := kc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("拉取 JWKS 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS 端点返回错误 (状态码 %d)", resp.StatusCode)
	}

	var payload struct {
		Keys []SigningKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析 JWKS 失败: %w", err)
	}

	kc.keys = payload.Keys
	kc.fetchedAt = time.Now()
	return kc.keys, nil
}

// IdentityVerifier 校验身份提供方签发的 RS256 身份令牌
type IdentityVerifier struct {
	cache    KeyCache
	issuer   string
	audience string
}

// NewIdentityVerifier 创建身份令牌校验器
func NewIdentityVerifier(cache KeyCache, issuer, audience string) *IdentityVerifier {
	return &IdentityVerifier{cache: cache, issuer: issuer, audience: audience}
}

// Authenticate 实现 Authenticator：请求里的令牌经公钥校验换取用户 id
func (v *IdentityVerifier) Authenticate(r *http.Request) (string, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}
	return v.Verify(r.Context(), raw)
}

// Verify 校验令牌并返回 subject
func (v *IdentityVerifier) Verify(ctx context.Context, raw string) (string, error) {
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("令牌缺少 kid")
		}

		keys, err := v.cache.Get(ctx)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if key.Kid == kid {
				return rsaPublicKey(key)
			}
		}
		return nil, fmt.Errorf("未找到签名公钥: %s", kid)
	}

	token, err := jwt.Parse(raw, keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: 身份令牌无效", ErrUnauthenticated)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: 身份令牌缺少 subject", ErrUnauthenticated)
	}
	return sub, nil
}

// rsaPublicKey 把 JWK 的模数/指数转换成 rsa.PublicKey
func rsaPublicKey(key SigningKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("解析模数失败: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("解析指数失败: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
