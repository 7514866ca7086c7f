package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/branchauth/identity"
	"go.uber.org/zap"
)

var (
	// ErrRequestFailed is returned for any transport or remote failure. The message names the action.
	ErrRequestFailed = errors.New("request failed")
	// ErrForeignEndpoint is logged when an absolute endpoint points away from the base URL host.
	ErrForeignEndpoint = errors.New("endpoint outside base url")
)

// Envelope keys owned by the composer.
const (
	FieldUserID = "user_id"
	FieldToken  = "token"
	FieldBranch = "branch"
	FieldAction = "action"
)

// IdentityResolver yields the identity triple for the next request.
type IdentityResolver interface {
	GetUserSession(ctx context.Context) (identity.Identity, error)
}

// Options configures a Composer.
type Options struct {
	Resolver  IdentityResolver
	Transport Transport
	// BaseURL is prefixed to relative endpoints. Absolute endpoints must share its scheme and
	// host. With no BaseURL, endpoints are used as-is.
	BaseURL string
	Logger  *zap.Logger
	// Observe, if set, is called once per dispatched request with its outcome.
	Observe func(action string, err error)
}

// Composer builds and dispatches authenticated requests.
type Composer struct {
	resolver  IdentityResolver
	transport Transport
	baseURL   string
	base      *url.URL
	log       *zap.Logger
	observe   func(string, error)
}

// NewComposer validates opts and returns a Composer.
func NewComposer(opts Options) (*Composer, error) {
	if opts.Resolver == nil {
		return nil, errors.New("request: resolver is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("request: transport is required")
	}
	var base *url.URL
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("request: invalid base url: %w", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("request: base url must be absolute: %q", opts.BaseURL)
		}
		base = u
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{
		resolver:  opts.Resolver,
		transport: opts.Transport,
		baseURL:   opts.BaseURL,
		base:      base,
		log:       log.Named("request"),
		observe:   opts.Observe,
	}, nil
}

// Request resolves identity, dispatches {user_id, token, branch, action, ...extra} to endpoint
// and returns the "data" member of the response. Nothing is dispatched when identity resolution
// fails; that error is returned as-is.
func (c *Composer) Request(ctx context.Context, endpoint, action string, extra map[string]any) (json.RawMessage, error) {
	id, err := c.resolver.GetUserSession(ctx)
	if err != nil {
		return nil, err
	}

	target, err := c.resolve(endpoint)
	if err != nil {
		c.log.Warn("request failed", zap.String("action", action), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, action)
	}

	data, err := c.transport.Submit(ctx, target, Envelope(id, action, extra))
	if c.observe != nil {
		c.observe(action, err)
	}
	if err != nil {
		c.log.Warn("request failed",
			zap.String("action", action),
			zap.String("endpoint", target),
			zap.String("branch", id.Branch),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, action)
	}
	return data, nil
}

// Do is Request with the response data decoded into T.
func Do[T any](ctx context.Context, c *Composer, endpoint, action string, extra map[string]any) (T, error) {
	var out T
	data, err := c.Request(ctx, endpoint, action, extra)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		c.log.Warn("request response undecodable", zap.String("action", action), zap.Error(err))
		return out, fmt.Errorf("%w: %s", ErrRequestFailed, action)
	}
	return out, nil
}

// Envelope merges the identity triple and action over extra. extra is not modified.
func Envelope(id identity.Identity, action string, extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+4)
	for k, v := range extra {
		out[k] = v
	}
	out[FieldUserID] = id.UserID
	out[FieldToken] = id.Token
	out[FieldBranch] = id.Branch
	out[FieldAction] = action
	return out
}

func (c *Composer) resolve(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("empty endpoint")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() && u.Host == "" {
		if c.base == nil {
			return endpoint, nil
		}
		return url.JoinPath(c.baseURL, endpoint)
	}
	if c.base != nil && (!strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host)) {
		return "", fmt.Errorf("%w: %s", ErrForeignEndpoint, u.Host)
	}
	return endpoint, nil
}
