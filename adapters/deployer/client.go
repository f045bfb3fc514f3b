// Package deployer is the HTTP client for the one-shot smart account
// deployment service.
package deployer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// Client calls the deployment service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a deployer client.
func NewClient(baseURL string) ports.Deployer {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type deployResponse struct {
	Res struct {
		UniversalProfileAddress string `json:"universalProfileAddress"`
		TransactionHash         string `json:"transactionHash"`
	} `json:"res"`
}

// Deploy requests a new smart account controlled by the given address and
// returns its profile record.
func (c *Client) Deploy(ctx context.Context, controller string) (*core.SmartAccountProfile, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid deployer URL: %w", err)
	}
	q := u.Query()
	q.Set("controller", controller)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deploy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deployer returned status %d: %s", resp.StatusCode, msg)
	}

	var out deployResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("undecodable deployer response: %w", err)
	}
	if out.Res.UniversalProfileAddress == "" {
		return nil, fmt.Errorf("deployer response missing account address")
	}

	return &core.SmartAccountProfile{
		Address:          out.Res.UniversalProfileAddress,
		DeploymentTxHash: out.Res.TransactionHash,
	}, nil
}
