package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AvaProtocol/hybrid-compute/offchain"
	"github.com/AvaProtocol/hybrid-compute/pkg/byte4"
)

const DefaultRemoteTimeout = 30 * time.Second

var _ offchain.Handler = (*Remote)(nil)

// RemoteRequest is what a remote capability receives
type RemoteRequest struct {
	Signature string            `json:"signature"`
	Selector  string            `json:"selector"`
	Params    []json.RawMessage `json:"params"`
}

type remoteResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Remote forwards a call to an external HTTP service. This is how the
// capabilities whose logic lives elsewhere (prices, captcha, kyc, scores,
// rainfall, bidders) are served.
type Remote struct {
	signature string
	params    []string
	url       string
	client    *resty.Client
}

// NewRemote creates a forwarding handler. params names the arguments of
// signature for keyed requests; when empty, a0..aN are used.
func NewRemote(signature string, params []string, url string, timeout time.Duration) (*Remote, error) {
	_, types, err := byte4.ParseSignature(signature)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		for i := range types {
			params = append(params, fmt.Sprintf("a%d", i))
		}
	}
	if len(params) != len(types) {
		return nil, fmt.Errorf("%s takes %d params, %d names given", signature, len(types), len(params))
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Remote{
		signature: byte4.Canonicalize(signature),
		params:    params,
		url:       url,
		client:    client,
	}, nil
}

func (r *Remote) Params() []string {
	return r.params
}

func (r *Remote) Call(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	if len(params) != len(r.params) {
		return nil, fmt.Errorf("expected %d params, got %d", len(r.params), len(params))
	}

	var out remoteResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(&RemoteRequest{
			Signature: r.signature,
			Selector:  byte4.SelectorHex(r.signature),
			Params:    params,
		}).
		SetResult(&out).
		Post(r.url)
	if err != nil {
		return nil, fmt.Errorf("remote call failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("remote returned %s: %s", resp.Status(), string(resp.Body()))
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote error: %s", out.Error)
	}
	if len(out.Result) == 0 {
		return nil, fmt.Errorf("remote returned no result")
	}

	return out.Result, nil
}
