package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/branchauth/session"
	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned when the remote rejects a login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrTokenRejected is returned when the remote reports the session token as no longer live.
var ErrTokenRejected = errors.New("token rejected by remote")

// ActionCheckToken is the action tag of the liveness probe.
const ActionCheckToken = "checkToken"

// HTTPAuthenticator talks to the remote login and token-check endpoints.
type HTTPAuthenticator struct {
	transport *HTTPTransport
	loginURL  string
	checkURL  string
	log       *zap.Logger
}

// NewHTTPAuthenticator returns an authenticator posting to loginURL and checkURL.
func NewHTTPAuthenticator(transport *HTTPTransport, loginURL, checkURL string, log *zap.Logger) (*HTTPAuthenticator, error) {
	if transport == nil {
		return nil, errors.New("request: transport is required")
	}
	if loginURL == "" || checkURL == "" {
		return nil, errors.New("request: login and check urls are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPAuthenticator{
		transport: transport,
		loginURL:  loginURL,
		checkURL:  checkURL,
		log:       log.Named("auth"),
	}, nil
}

// Authenticate posts the credentials and returns the validated login response.
func (a *HTTPAuthenticator) Authenticate(ctx context.Context, username, password string) (session.AuthResponse, error) {
	body, err := a.transport.Post(ctx, a.loginURL, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden) {
			return session.AuthResponse{}, ErrInvalidCredentials
		}
		a.log.Warn("login request failed", zap.Error(err))
		return session.AuthResponse{}, fmt.Errorf("%w: login", ErrRequestFailed)
	}

	var resp session.AuthResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&resp); err != nil {
		a.log.Warn("login response undecodable", zap.Error(err))
		return session.AuthResponse{}, ErrInvalidCredentials
	}
	if !resp.Success {
		a.log.Info("login rejected", zap.String("message", resp.Message))
		return resp, ErrInvalidCredentials
	}
	if err := resp.Validate(); err != nil {
		a.log.Warn("login response failed validation", zap.Error(err))
		return resp, ErrInvalidCredentials
	}
	return resp, nil
}

// CheckLiveness asks the remote whether user's token is still live. The token counts as live
// only on an explicit yes: success true, data true, or valid true. Anything else is an error.
func (a *HTTPAuthenticator) CheckLiveness(ctx context.Context, user session.CurrentUser) error {
	body, err := a.transport.Post(ctx, a.checkURL, map[string]any{
		FieldUserID: string(user.User.ID),
		FieldToken:  user.Token,
		FieldAction: ActionCheckToken,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, ActionCheckToken, err)
	}

	var env struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Valid   *bool           `json:"valid"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		a.log.Warn("token check response undecodable", zap.Error(err))
		return ErrTokenRejected
	}

	var dataFlag *bool
	var dataObj struct {
		Valid *bool `json:"valid"`
	}
	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		var b bool
		if json.Unmarshal(env.Data, &b) == nil {
			dataFlag = &b
		} else {
			_ = json.Unmarshal(env.Data, &dataObj)
		}
	}

	for _, flag := range []*bool{env.Success, env.Valid, dataFlag, dataObj.Valid} {
		if flag != nil && !*flag {
			a.log.Info("token rejected", zap.String("message", env.Message))
			return ErrTokenRejected
		}
	}
	for _, flag := range []*bool{env.Success, env.Valid, dataFlag, dataObj.Valid} {
		if flag != nil && *flag {
			return nil
		}
	}
	a.log.Info("token check gave no verdict", zap.String("message", env.Message))
	return ErrTokenRejected
}
