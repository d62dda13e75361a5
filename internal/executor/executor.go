// Package executor issues outbound HTTP calls with bounded retry on
// transport failures and transparent handling of rate-limit responses.
//
// A 429 response puts the executor into a cooldown and the call is re-issued
// in the same attempt slot, so rate limiting never eats into the retry budget
// reserved for genuine transport errors.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

const (
	// DefaultMaxRetries is the number of attempts made for transport failures
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the pause between transport failure attempts
	DefaultRetryDelay = 5 * time.Second
	// DefaultCooldown is the pause after a rate-limit response
	DefaultCooldown = 60 * time.Second
	// DefaultTimeout bounds a single HTTP round trip
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrNetworkFailure matches every *NetworkFailure via errors.Is
	ErrNetworkFailure = errors.New("network failure")
	// ErrRateLimited is returned when the remote keeps answering 429 after
	// MaxCooldowns cooldowns. It is never returned when MaxCooldowns is 0.
	ErrRateLimited = errors.New("rate limited")
)

// NetworkFailure is returned once every attempt failed at the transport level
type NetworkFailure struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

// Unwrap returns the last transport error
func (e *NetworkFailure) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNetworkFailure) match
func (e *NetworkFailure) Is(target error) bool {
	return target == ErrNetworkFailure
}

// Config holds configuration for an Executor
type Config struct {
	// MaxRetries is the number of attempts for transport failures (default: DefaultMaxRetries)
	MaxRetries int
	// RetryDelay is the pause between attempts (default: DefaultRetryDelay)
	RetryDelay time.Duration
	// Cooldown is the pause after a 429 response (default: DefaultCooldown)
	Cooldown time.Duration
	// MaxCooldowns caps consecutive cooldowns per call; 0 means unlimited
	MaxCooldowns int
	// HTTPClient performs the round trips (default: client with DefaultTimeout)
	HTTPClient *http.Client
	// Sleeper performs every wait (default: util.RealSleeper)
	Sleeper util.Sleeper
}

// Executor sends requests on behalf of the catalog clients.
// It satisfies the Do(*http.Request) contract of *http.Client.
type Executor struct {
	client       *http.Client
	sleeper      util.Sleeper
	log          *logger.Logger
	maxRetries   int
	retryDelay   time.Duration
	cooldown     time.Duration
	maxCooldowns int
}

// New creates an Executor, filling unset fields of cfg with defaults
func New(cfg Config, log *logger.Logger) *Executor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxCooldowns < 0 {
		cfg.MaxCooldowns = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = util.RealSleeper{}
	}
	if log == nil {
		log = logger.Get()
	}

	return &Executor{
		client:       cfg.HTTPClient,
		sleeper:      cfg.Sleeper,
		log:          log.With(map[string]interface{}{"component": "executor"}),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		cooldown:     cfg.Cooldown,
		maxCooldowns: cfg.MaxCooldowns,
	}
}

// transportError marks a failure that is worth another attempt
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

// Do sends req and returns the first response that is not a 429.
// Transport failures are retried up to MaxRetries attempts, RetryDelay apart;
// when they run out a *NetworkFailure is returned. Any response other than
// 429, successful or not, is returned as is for the caller to interpret.
func (e *Executor) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := bufferBody(req); err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}

	var (
		resp      *http.Response
		lastErr   error
		fatal     error
		attempt   int
		cooldowns int
	)

	_ = retry.Do(
		func() error {
			attempt++
			if attempt > 1 {
				if err := e.sleeper.Sleep(ctx, e.retryDelay); err != nil {
					fatal = err
					return err
				}
			}

			r, err := e.attempt(ctx, req, attempt, &cooldowns)
			if err != nil {
				if isTransportError(err) {
					lastErr = errors.Unwrap(err)
				} else {
					fatal = err
				}
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.maxRetries)),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransportError),
	)

	if resp != nil {
		return resp, nil
	}
	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failure := &NetworkFailure{
		Method:   req.Method,
		URL:      redact(req),
		Attempts: attempt,
		Err:      lastErr,
	}
	e.log.Error("Request failed, no attempts left", map[string]interface{}{
		"error":       failure.Error(),
		"max_retries": e.maxRetries,
	})
	return nil, failure
}

// attempt sends req until it gets a non-429 response or a transport error.
// Cooldowns spent here do not count as attempts.
func (e *Executor) attempt(ctx context.Context, req *http.Request, n int, cooldowns *int) (*http.Response, error) {
	for {
		resp, err := e.send(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.log.Warn("Request attempt failed", map[string]interface{}{
				"attempt":     n,
				"max_retries": e.maxRetries,
				"method":      req.Method,
				"url":         redact(req),
				"error":       err.Error(),
			})
			return nil, &transportError{err: err}
		}

		e.log.Info("Request attempt", map[string]interface{}{
			"attempt":     n,
			"max_retries": e.maxRetries,
			"method":      req.Method,
			"url":         redact(req),
			"status":      resp.StatusCode,
		})

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		*cooldowns++
		if e.maxCooldowns > 0 && *cooldowns > e.maxCooldowns {
			return nil, fmt.Errorf("%s %s: %w after %d cooldowns", req.Method, redact(req), ErrRateLimited, e.maxCooldowns)
		}

		e.log.Warn("Rate limited, cooling down", map[string]interface{}{
			"cooldown": e.cooldown.String(),
			"url":      redact(req),
		})
		if err := e.sleeper.Sleep(ctx, e.cooldown); err != nil {
			return nil, err
		}
	}
}

// send performs one round trip with a fresh copy of the request body
func (e *Executor) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}
	return e.client.Do(out)
}

// bufferBody makes the body of req replayable
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(data))
	return nil
}

// redact drops the query string, which may carry search terms or keys
func redact(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
