// Package bootstrap implements the HTTP login exchange that trades a login,
// password-free credentials tuple for the token/session-key/ws_url triple
// the client facade needs to open a connection. This is an external
// collaborator per spec.md §1: the core only consumes its output.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachpo/mt4gw/crypto"
	"github.com/coachpo/mt4gw/errs"
)

// Credentials are the login inputs consumed once at connect (spec.md §3).
type Credentials struct {
	Login    string
	Password string
	Server   string
}

// Result is the opaque {token, session_key, ws_url} triple the core
// consumes to open a connection (spec.md §3's BootstrapResult).
type Result struct {
	Token      string
	SessionKey [32]byte
	WSURL      string
}

type response struct {
	SignalServer string `json:"signal_server"`
	Key          string `json:"key"`
	Token        string `json:"token"`
	Enabled      bool   `json:"enabled"`
}

// DefaultTimeout bounds the bootstrap HTTP round trip.
const DefaultTimeout = 15 * time.Second

// Fetch performs the bootstrap exchange against baseURL, per spec.md §6:
// POST <baseURL>/trade/json with an application/x-www-form-urlencoded body
// login=<login>&trade_server=<server>&gwt=4.
func Fetch(ctx context.Context, baseURL string, creds Credentials) (Result, error) {
	client := &http.Client{Timeout: DefaultTimeout}
	return fetchWith(ctx, client, baseURL, creds)
}

func fetchWith(ctx context.Context, client *http.Client, baseURL string, creds Credentials) (Result, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/trade/json"

	form := url.Values{}
	form.Set("login", creds.Login)
	form.Set("trade_server", creds.Server)
	form.Set("gwt", "4")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, errs.Bootstrap("", errs.WithCause(err), errs.WithMessage("build bootstrap request"))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, errs.Bootstrap("", errs.WithCause(err), errs.WithMessage("bootstrap request failed"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.Bootstrap(errs.ReasonMalformedResponse, errs.WithCause(err))
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, errs.Bootstrap(errs.ReasonMalformedResponse,
			errs.WithMessage(fmt.Sprintf("bootstrap returned HTTP %d", resp.StatusCode)))
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, errs.Bootstrap(errs.ReasonMalformedResponse, errs.WithCause(err))
	}
	if !decoded.Enabled {
		return Result{}, errs.Bootstrap(errs.ReasonWebTerminalDisabled)
	}
	if len(decoded.Token) != 64 {
		return Result{}, errs.Bootstrap(errs.ReasonMalformedResponse,
			errs.WithMessage("token must be exactly 64 bytes"))
	}

	sessionKey, err := crypto.DecodeSessionKey(decoded.Key)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Token:      decoded.Token,
		SessionKey: sessionKey,
		WSURL:      decoded.SignalServer,
	}, nil
}
