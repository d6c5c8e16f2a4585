package coupa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erpbridge/platform/pkg/common/config"
	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/resilience"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client talks to the Coupa REST API. Every call goes through the shared
// sliding-window rate limiter and the retry policy; authentication is OAuth2
// client credentials with the token cached in Redis so restarts and multiple
// modules reuse it until expiry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *resilience.RateLimiter
	retryOpts  resilience.Options
}

const tokenCacheKey = "coupa:oauth2:token"

func NewClient(cfg *config.Config, cache *redis.Client) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.CoupaClientID,
		ClientSecret: cfg.CoupaClientSecret,
		TokenURL:     cfg.CoupaTokenURL,
	}
	if cfg.CoupaScope != "" {
		cc.Scopes = strings.Split(cfg.CoupaScope, " ")
	}

	var src oauth2.TokenSource = cc.TokenSource(context.Background())
	if cache != nil {
		src = oauth2.ReuseTokenSource(nil, &redisTokenSource{cache: cache, src: src})
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.CoupaBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.CoupaRequestTimeout},
		tokens:     src,
		limiter:    resilience.NewRateLimiter(cfg.CoupaRateLimit, cfg.CoupaRateWindow),
		retryOpts:  resilience.Options{},
	}
}

// redisTokenSource fetches a fresh token only when the cached one has
// expired. Cache failures fall through to the token endpoint.
type redisTokenSource struct {
	cache *redis.Client
	src   oauth2.TokenSource
}

func (r *redisTokenSource) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	if raw, err := r.cache.Get(ctx, tokenCacheKey).Bytes(); err == nil {
		var tok oauth2.Token
		if err := json.Unmarshal(raw, &tok); err == nil && tok.Valid() {
			return &tok, nil
		}
	}

	tok, err := r.src.Token()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(tok); err == nil {
		ttl := time.Until(tok.Expiry) - 30*time.Second
		if ttl > 0 {
			if err := r.cache.Set(ctx, tokenCacheKey, raw, ttl).Err(); err != nil {
				logger.Log.WithError(err).Warn("Failed to cache Coupa token")
			}
		}
	}
	return tok, nil
}

// do executes one API call under the rate limiter and the retry policy. A
// non-2xx response comes back as a *resilience.StatusError carrying the body
// and the Retry-After header.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request payload: %w", err)
		}
	}

	var response []byte
	err := resilience.ExecuteWithRetry(ctx, func() error {
		if err := c.limiter.WaitIfNeeded(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to obtain Coupa token: %w", err)
		}
		tok.SetAuthHeader(req)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &resilience.StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       raw,
				RetryAfter: resp.Header.Get("Retry-After"),
			}
		}
		response = raw
		return nil
	}, c.retryOpts)
	return response, err
}

// Get fetches path and decodes the JSON response into out when out is
// non-nil.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) Post(ctx context.Context, path string, payload, out interface{}) error {
	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) Put(ctx context.Context, path string, payload, out interface{}) error {
	raw, err := c.do(ctx, http.MethodPut, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Contract is the subset of a Coupa contract the integration reads and
// writes.
type Contract struct {
	ID             int                    `json:"id,omitempty"`
	ContractNumber string                 `json:"contract-number,omitempty"`
	Status         string                 `json:"status,omitempty"`
	CustomFields   map[string]interface{} `json:"custom-fields,omitempty"`
}

// UpdateContractReference writes the ERP outline agreement number onto a
// Coupa contract's sap-oa custom field and publishes the contract in the
// same call.
func (c *Client) UpdateContractReference(ctx context.Context, coupaContractID int, sapOANumber string) error {
	payload := Contract{
		ID:           coupaContractID,
		Status:       "published",
		CustomFields: map[string]interface{}{"sap-oa": sapOANumber},
	}
	return c.Put(ctx, fmt.Sprintf("/api/contracts/%d", coupaContractID), payload, nil)
}

// SupplierItemPayload is the shape pushed to the Coupa supplier-items API.
// Coupa addresses supplier items by CSIN, which doubles as the payload id.
type SupplierItemPayload struct {
	ID             string                 `json:"id"`
	ContractNumber string                 `json:"contract-number,omitempty"`
	Price          *float64               `json:"price,omitempty"`
	Currency       string                 `json:"currency,omitempty"`
	CustomFields   map[string]interface{} `json:"custom-fields,omitempty"`
}

// UpsertSupplierItem PUTs one item to {endpoint}/{csin}. The endpoint is the
// collection path, configurable per module.
func (c *Client) UpsertSupplierItem(ctx context.Context, endpoint string, payload SupplierItemPayload) error {
	if endpoint == "" {
		endpoint = "/api/supplier_items"
	}
	target := strings.TrimSuffix(endpoint, "/") + "/" + url.PathEscape(payload.ID)
	return c.Put(ctx, target, payload, nil)
}
