// Package registry verifies decisions against the external decision registry.
package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"soknad-workers/internal/common/config"
	"soknad-workers/internal/common/errors"
	apphttp "soknad-workers/internal/common/http"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	decisionPath   = "/vedtak/eksisterer"
	cacheKeyPrefix = "soknad:vedtak:"
)

type decisionRequest struct {
	Identity     string `json:"fnr"`
	System       string `json:"fagsystem"`
	CaseRef      string `json:"saksreferanse"`
	DecisionDate string `json:"vedtaksdato"`
}

type decisionResponse struct {
	Exists bool `json:"eksisterer"`
}

// Verifier asks the decision registry whether a decision with a given date
// exists for a person and case. Positive answers are cached in Redis; a
// decision never disappears once made.
type Verifier struct {
	client   *apphttp.Client
	cache    *redis.Client
	baseURL  string
	cacheTTL time.Duration
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// NewVerifier builds a Verifier. cache may be nil.
func NewVerifier(cfg config.RegistryConfig, cache *redis.Client, log logger.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{
		client:   apphttp.NewClient(config.GetDuration(cfg.Timeout), cfg.MaxRetries),
		cache:    cache,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cacheTTL: config.GetDuration(cfg.CacheTTLMs),
		logger:   log.WithFields(map[string]interface{}{"component": "decision-registry"}),
		metrics:  m,
	}
}

// DecisionExists reports whether the registry holds a decision dated `date`
// for identity on ref.
func (v *Verifier) DecisionExists(ctx context.Context, identity string, ref models.CaseReference, date time.Time) (bool, error) {
	body := decisionRequest{
		Identity:     identity,
		System:       string(ref.System),
		CaseRef:      ref.MatchKey(),
		DecisionDate: date.Format(models.DateLayout),
	}
	key := cacheKey(body)

	if v.cache != nil {
		_, err := v.cache.Get(ctx, key).Result()
		switch {
		case err == nil:
			v.metrics.RegistryRequests.WithLabelValues("cached").Inc()
			return true, nil
		case err != redis.Nil:
			v.logger.Warn("decision cache read failed", map[string]interface{}{"error": err})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return false, err
	}

	resp, err := v.client.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+decisionPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		v.metrics.RegistryRequests.WithLabelValues("error").Inc()
		if isTimeout(err) {
			return false, errors.NewRegistryTimeoutError(err)
		}
		return false, errors.NewRegistryUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		v.metrics.RegistryRequests.WithLabelValues("absent").Inc()
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		v.metrics.RegistryRequests.WithLabelValues("error").Inc()
		return false, errors.NewRegistryUnavailableError(fmt.Errorf("registry returned %d", resp.StatusCode))
	}

	var out decisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		v.metrics.RegistryRequests.WithLabelValues("error").Inc()
		return false, errors.NewRegistryUnavailableError(fmt.Errorf("decode response: %w", err))
	}

	if !out.Exists {
		v.metrics.RegistryRequests.WithLabelValues("absent").Inc()
		return false, nil
	}
	v.metrics.RegistryRequests.WithLabelValues("exists").Inc()

	if v.cache != nil && v.cacheTTL > 0 {
		if err := v.cache.Set(ctx, key, "1", v.cacheTTL).Err(); err != nil {
			v.logger.Warn("decision cache write failed", map[string]interface{}{"error": err})
		}
	}
	return true, nil
}

// cacheKey hashes the request so identities are not stored in key names.
func cacheKey(r decisionRequest) string {
	sum := sha256.Sum256([]byte(r.Identity + "|" + r.System + "|" + r.CaseRef + "|" + r.DecisionDate))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return stderrors.As(err, &t) && t.Timeout()
}
