// Package litrelay is an HTTP client for the threshold signing network: key
// mints go through the network's relay server, session credentials and
// signing routines through its node endpoint.
package litrelay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 2 * time.Minute
	connectAttempts     = 5
	connectBackoff      = 2 * time.Second
)

// Config configures the signing network client.
type Config struct {
	BaseURL      string        // network endpoint base URL
	APIKey       string        // relay server API key
	PollInterval time.Duration // mint status poll cadence
	PollTimeout  time.Duration // give up waiting for a mint after this long
}

// Client implements ports.SigningNetwork over HTTP. Construct one per
// process and pass it explicitly; Connect and Shutdown bound its lifecycle.
type Client struct {
	cfg       Config
	http      *http.Client
	log       *logrus.Entry
	connected bool
}

// NewClient creates a signing network client.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log.WithField("component", "litrelay"),
	}
}

var _ ports.SigningNetwork = (*Client)(nil)

// Connect performs the network handshake. Idempotent; transient failures are
// retried with backoff before surfacing core.ErrNetworkUnavailable.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(connectBackoff * time.Duration(attempt)):
			}
		}

		var out struct {
			Connected bool `json:"connected"`
		}
		if err := c.do(ctx, http.MethodGet, "/connect", nil, &out); err != nil {
			lastErr = err
			c.log.WithError(err).WithField("attempt", attempt+1).Warn("handshake failed")
			continue
		}
		c.connected = true
		return nil
	}
	return fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, lastErr)
}

// Shutdown releases the network session.
func (c *Client) Shutdown() {
	c.connected = false
	c.http.CloseIdleConnections()
}

type mintRequest struct {
	AuthToken string   `json:"auth_token"`
	Provider  string   `json:"provider"`
	Scopes    []string `json:"permitted_scopes"`
}

type mintStatus struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	TxHash    string `json:"tx_hash"`
	Error     string `json:"error"`
}

// MintKey requests a new distributed key bound to the token and waits for
// the underlying mint transaction to complete.
func (c *Client) MintKey(ctx context.Context, token core.AuthToken, grants []core.Capability) (*core.MintJob, error) {
	req := mintRequest{
		AuthToken: token.RawToken,
		Provider:  string(token.Provider),
		Scopes:    capabilityStrings(grants),
	}

	var started mintStatus
	if err := c.do(ctx, http.MethodPost, "/mint-key", req, &started); err != nil {
		return nil, fmt.Errorf("mint request failed: %w", err)
	}

	c.log.WithField("request_id", started.RequestID).Info("mint started, polling")

	deadline := time.Now().Add(c.cfg.PollTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		var status mintStatus
		if err := c.do(ctx, http.MethodGet, "/mint-key/"+started.RequestID, nil, &status); err != nil {
			// Transient poll failures do not fail the mint; the job keeps
			// running remotely.
			c.log.WithError(err).Debug("mint status poll failed")
		} else {
			switch strings.ToLower(status.Status) {
			case "succeeded":
				return &core.MintJob{RequestID: started.RequestID, TxHash: status.TxHash}, nil
			case "failed":
				return nil, fmt.Errorf("mint transaction failed: %s", status.Error)
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: mint %s not complete after %s", core.ErrNetworkUnavailable, started.RequestID, c.cfg.PollTimeout)
		}
	}
}

type fetchKeysRequest struct {
	AuthToken string `json:"auth_token"`
	Provider  string `json:"provider"`
}

type keyRecord struct {
	PublicKey  string `json:"public_key"`
	EthAddress string `json:"eth_address"`
}

// ListKeys enumerates keys minted for the token. The network returns them in
// a stable order; callers rely on that when selecting index 0.
func (c *Client) ListKeys(ctx context.Context, token core.AuthToken) ([]core.DistributedKey, error) {
	var out struct {
		Keys []keyRecord `json:"keys"`
	}
	if err := c.do(ctx, http.MethodPost, "/fetch-keys", fetchKeysRequest{
		AuthToken: token.RawToken,
		Provider:  string(token.Provider),
	}, &out); err != nil {
		return nil, fmt.Errorf("fetch keys failed: %w", err)
	}

	keys := make([]core.DistributedKey, 0, len(out.Keys))
	for _, k := range out.Keys {
		keys = append(keys, core.DistributedKey{
			PublicKey:      k.PublicKey,
			AccountAddress: common.HexToAddress(k.EthAddress).Hex(),
			OwnerProvider:  token.Provider,
		})
	}
	return keys, nil
}

type sessionRequest struct {
	AuthToken  string   `json:"auth_token"`
	Provider   string   `json:"provider"`
	PublicKey  string   `json:"public_key"`
	Grants     []string `json:"grants"`
	Expiration string   `json:"expiration"`
}

// SessionCredential requests capability-scoped, time-bounded authorization
// for a key the token owns.
func (c *Client) SessionCredential(ctx context.Context, token core.AuthToken, key core.DistributedKey, grants []core.Capability, ttl time.Duration) (*core.SessionCredential, error) {
	notAfter := time.Now().Add(ttl)

	var out struct {
		Material string `json:"session_material"`
	}
	err := c.do(ctx, http.MethodPost, "/session", sessionRequest{
		AuthToken:  token.RawToken,
		Provider:   string(token.Provider),
		PublicKey:  key.PublicKey,
		Grants:     capabilityStrings(grants),
		Expiration: notAfter.UTC().Format(time.RFC3339),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}

	return &core.SessionCredential{
		Grants:   grants,
		NotAfter: notAfter,
		BoundKey: key,
		Material: out.Material,
	}, nil
}

type signRequest struct {
	SessionMaterial string `json:"session_material"`
	PublicKey       string `json:"public_key"`
	ToSign          string `json:"to_sign"` // hex digest
}

type signResponse struct {
	DataSigned string `json:"data_signed"`
	PublicKey  string `json:"public_key"`
	R          string `json:"r"`
	S          string `json:"s"`
	RecID      byte   `json:"recid"`
	Signature  string `json:"signature"`
}

// SignDigest runs the remote signing routine. The session is checked locally
// before the network round trip: an expired credential cannot become valid
// remotely, and neither can a missing grant.
func (c *Client) SignDigest(ctx context.Context, session core.SessionCredential, key core.DistributedKey, digest common.Hash) (*core.RelaySignature, error) {
	if session.Expired(time.Now()) {
		return nil, core.ErrSessionExpired
	}
	if !session.Allows(core.CapabilitySign) {
		return nil, core.ErrCapabilityDenied
	}

	var out signResponse
	err := c.do(ctx, http.MethodPost, "/sign", signRequest{
		SessionMaterial: session.Material,
		PublicKey:       key.PublicKey,
		ToSign:          digest.Hex(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("remote sign failed: %w", err)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(out.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable signature: %v", core.ErrBadSignature, err)
	}

	return &core.RelaySignature{
		Digest:     digest,
		PublicKey:  out.PublicKey,
		R:          common.FromHex(out.R),
		S:          common.FromHex(out.S),
		RecoveryID: out.RecID,
		Raw:        raw,
	}, nil
}

// do performs one JSON round trip. Non-2xx statuses map onto the error
// taxonomy by class.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return core.ErrSessionExpired
	case resp.StatusCode == http.StatusForbidden:
		return core.ErrCapabilityDenied
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", core.ErrNetworkUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("network rejected request: status %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func capabilityStrings(grants []core.Capability) []string {
	out := make([]string, len(grants))
	for i, g := range grants {
		out[i] = string(g)
	}
	return out
}
