// Package fetch retrieves resources and paginated collections from a
// GitHub-style REST API. A Session owns its rate-limit tracker and result
// cache; nothing here is package-level state.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/cache"
	"github.com/octofetch/octofetch/internal/core/engine"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	// DefaultRequestTimeout bounds each individual request, not a whole fetch.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultMaxRateLimitWaits caps how many quota cooldowns one request may sit through.
	DefaultMaxRateLimitWaits = 3
	// DefaultRateLimitBackoff applies when a throttled response carries no reset hint.
	DefaultRateLimitBackoff = time.Minute

	maxBodyBytes = 32 << 20
	apiVersion   = "2022-11-28"
)

// Session is one logical client of a remote API. Requests are issued one at a
// time; tracker state is guarded so a session may be shared, but callers get
// the sequential semantics only when a single fetch runs at once.
type Session struct {
	BaseURL           string
	Token             string
	Client            *http.Client
	Tracker           *engine.Tracker
	Cache             cache.Cache
	RequestTimeout    time.Duration
	// MaxRateLimitWaits caps the quota cooldowns one request sits through.
	// Past the cap RateLimited is returned even though the wait was never
	// cancelled; zero means DefaultMaxRateLimitWaits.
	MaxRateLimitWaits int
	RateLimitBackoff  time.Duration
	UserAgent         string
	ToolVersion       string
	Logger            *logging.Logger
	Recorder          Recorder
	Clock             func() time.Time
	Sleep             func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

type reply struct {
	status int
	header http.Header
	body   []byte
}

// Get looks up a single resource such as "repos/octocat/Hello-World".
// NotFound and Unauthorized surface immediately and are never retried.
func (s *Session) Get(ctx context.Context, path string) (*core.Resource, error) {
	if s == nil {
		return nil, errors.New("fetch session is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestedAt := s.now()

	target, clean, err := s.resolve(path, nil)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(target)
	if data, ok := s.cacheGet(ctx, key); ok && json.Valid(data) {
		return s.resource(ctx, clean, http.StatusOK, data, requestedAt, true, target.Host), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: KindCancelled, Path: clean, Cause: err}
	}

	resp, err := s.execute(ctx, target, clean, 0, 0)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.body) {
		return nil, &FetchError{Kind: KindFetchFailed, Path: clean, StatusCode: resp.status, Cause: errors.New("response is not valid JSON")}
	}

	s.cachePut(ctx, key, resp.body)
	return s.resource(ctx, clean, resp.status, resp.body, requestedAt, false, target.Host), nil
}

// RateLimit returns the latest quota snapshot observed by the session.
func (s *Session) RateLimit() (core.RateLimitState, bool) {
	if s == nil {
		return core.RateLimitState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker().State()
}

// PersistRateLimit saves the quota snapshot under the session's Endpoint.
func (s *Session) PersistRateLimit(ctx context.Context, store engine.RateLimitStore) error {
	if s == nil || store == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker().Persist(ctx, store, s.Endpoint())
}

// Endpoint keys persisted quota state: the API host plus the credential
// scope, since the upstream meters each token separately from anonymous use.
func (s *Session) Endpoint() string {
	return s.baseURL().Host + "#" + s.credentialScope()
}

// execute issues one logical request, applying the retry policy. page and
// lastPage only annotate errors; item lookups pass zero.
func (s *Session) execute(ctx context.Context, target *url.URL, path string, page, lastPage int) (*reply, error) {
	var transient, throttled int

	for {
		if err := s.waitForQuota(ctx, path, page); err != nil {
			return nil, &FetchError{
				Kind:     KindCancelled,
				Path:     path,
				Page:     page,
				LastPage: lastPage,
				Cause:    fmt.Errorf("%w while waiting for quota reset: %w", ErrRateLimited, err),
			}
		}

		resp, err := s.roundTrip(ctx, target)

		status := 0
		var header http.Header
		if resp != nil {
			status = resp.status
			header = resp.header
		}

		outcome := Classify(status, header, err)
		s.recorder().RequestCompleted(outcome, status)

		switch outcome {
		case OutcomeTransient:
			transient++
		case OutcomeRateLimited:
			// A throttled reply breaks a run of transient failures.
			throttled++
			transient = 0
		}

		switch decide(outcome, transient, throttled, s.maxRateLimitWaits()) {
		case actionAccept:
			return resp, nil
		case actionRetry:
			s.recorder().Retried(outcome)
			s.debug("Retrying after transient failure",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Int("status", status),
				zap.Error(err))
		case actionWaitAndRetry:
			s.recorder().Retried(outcome)
			s.ensureBackoff(header)
			s.debug("Throttled by upstream, waiting for quota",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Int("status", status))
		case actionGiveUp:
			s.warn("Giving up after repeated transient failures",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Int("last_page", lastPage),
				zap.Int("status", status))
			return nil, &FetchError{
				Kind:       KindFetchFailed,
				Path:       path,
				Page:       page,
				LastPage:   lastPage,
				StatusCode: status,
				Cause:      failureCause(resp, err),
			}
		default:
			return nil, &FetchError{
				Kind:       outcome.kind(),
				Path:       path,
				Page:       page,
				LastPage:   lastPage,
				StatusCode: status,
				Cause:      failureCause(resp, err),
			}
		}
	}
}

// roundTrip performs one HTTP exchange. Cancellation of ctx is not propagated
// into the request: an exchange in flight finishes (or times out) so that its
// quota headers are always recorded before the caller notices cancellation.
func (s *Session) roundTrip(ctx context.Context, target *url.URL) (*reply, error) {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", s.userAgent())
	if token := strings.TrimSpace(s.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	s.mu.Lock()
	s.tracker().Observe(resp.Header)
	s.mu.Unlock()

	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}

	return &reply{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (s *Session) waitForQuota(ctx context.Context, path string, page int) error {
	s.mu.Lock()
	wait := s.tracker().ShouldWait(s.now())
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	s.recorder().RateLimitWait(wait)
	s.debug("Waiting for rate limit reset",
		zap.String("path", path),
		zap.Int("page", page),
		zap.Duration("wait", wait))

	return s.sleep(ctx, wait)
}

// ensureBackoff applies the fallback cooldown when a throttled reply gave no
// usable hint. An explicit Retry-After, even zero or a past date, is obeyed.
func (s *Session) ensureBackoff(header http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, ok := engine.RetryAfter(header, now); ok {
		return
	}
	tracker := s.tracker()
	if tracker.ShouldWait(now) > 0 {
		return
	}
	backoff := s.RateLimitBackoff
	if backoff <= 0 {
		backoff = DefaultRateLimitBackoff
	}
	tracker.Backoff(backoff)
}

// resolve joins a relative resource path (optionally carrying its own query)
// onto the base URL. It returns the target and the bare path for reporting.
func (s *Session) resolve(path string, query url.Values) (*url.URL, string, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(path), "/")
	if clean == "" {
		return nil, "", fmt.Errorf("%w: resource path is required", ErrInvalidPath)
	}

	ref, err := url.Parse(clean)
	if err != nil {
		return nil, "", fmt.Errorf("%w %q: %w", ErrInvalidPath, path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, "", fmt.Errorf("%w %q: must be relative to the API base URL", ErrInvalidPath, path)
	}
	for _, segment := range strings.Split(ref.Path, "/") {
		if segment == ".." {
			return nil, "", fmt.Errorf("%w %q: parent segments are not allowed", ErrInvalidPath, path)
		}
	}

	target := s.baseURL().JoinPath(ref.Path)
	values := ref.Query()
	for key, vals := range query {
		values[key] = vals
	}
	target.RawQuery = values.Encode()

	return target, strings.TrimPrefix(ref.Path, "/"), nil
}

// cacheKey scopes entries by credential so data fetched with a token is never
// served to an anonymous session.
func (s *Session) cacheKey(target *url.URL) string {
	return "GET " + target.String() + " " + s.credentialScope()
}

// credentialScope is "anon" or a short hash of the token, never the token.
func (s *Session) credentialScope() string {
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return "anon"
	}
	sum := sha256.Sum256([]byte(token))
	return "cred:" + hex.EncodeToString(sum[:6])
}

func (s *Session) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.Cache == nil {
		return nil, false
	}
	data, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		s.warn("Cache lookup failed", zap.Error(err))
		ok = false
	}
	s.recorder().CacheLookup(ok)
	return data, ok
}

func (s *Session) cachePut(ctx context.Context, key string, body []byte) {
	if s.Cache == nil {
		return
	}
	// A cancelled caller must not leave the cache without the page it already paid for.
	if err := s.Cache.Put(context.WithoutCancel(ctx), key, body); err != nil {
		s.warn("Cache store failed", zap.Error(err))
	}
}

func (s *Session) resource(ctx context.Context, path string, status int, body []byte, requestedAt time.Time, fromCache bool, server string) *core.Resource {
	data := make(json.RawMessage, len(body))
	copy(data, body)
	return &core.Resource{
		Path:       path,
		StatusCode: status,
		Data:       data,
		Provenance: core.Provenance{
			RequestID:   newRequestID(ctx),
			RequestedAt: requestedAt,
			ResolvedAt:  s.now(),
			Server:      server,
			FromCache:   fromCache,
			ToolVersion: s.ToolVersion,
		},
	}
}

func (s *Session) tracker() *engine.Tracker {
	if s.Tracker == nil {
		s.Tracker = &engine.Tracker{Clock: s.Clock}
	}
	return s.Tracker
}

func (s *Session) baseURL() *url.URL {
	if s != nil && s.BaseURL != "" {
		if parsed, err := url.Parse(strings.TrimRight(s.BaseURL, "/")); err == nil && parsed.Host != "" {
			return parsed
		}
	}
	parsed, _ := url.Parse(DefaultBaseURL)
	return parsed
}

func (s *Session) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: s.requestTimeout()}
}

func (s *Session) requestTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (s *Session) maxRateLimitWaits() int {
	if s.MaxRateLimitWaits > 0 {
		return s.MaxRateLimitWaits
	}
	return DefaultMaxRateLimitWaits
}

func (s *Session) userAgent() string {
	if ua := strings.TrimSpace(s.UserAgent); ua != "" {
		return ua
	}
	if s.ToolVersion != "" {
		return "octofetch/" + s.ToolVersion
	}
	return "octofetch"
}

func (s *Session) recorder() Recorder {
	if s.Recorder != nil {
		return s.Recorder
	}
	return nopRecorder{}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (s *Session) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Session) debug(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Debug(msg, fields...)
	}
}

func (s *Session) warn(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Warn(msg, fields...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// failureCause prefers the transport error, then the upstream error message.
func failureCause(resp *reply, transportErr error) error {
	if transportErr != nil {
		return transportErr
	}
	if resp == nil {
		return nil
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.body, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return fmt.Errorf("upstream: %s", strings.TrimSpace(payload.Message))
	}
	return fmt.Errorf("upstream status %d", resp.status)
}

type requestIDKey struct{}

// WithRequestID makes id the provenance request ID of fetches made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func newRequestID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
			return id
		}
	}
	return uuid.New().String()
}
