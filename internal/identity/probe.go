package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Verifier reports the external address currently seen by the network. A
// rotation only counts as successful once the verifier answers through the
// new tunnel.
type Verifier interface {
	ExternalAddr(ctx context.Context) (ExternalAddr, error)
}

// HTTPVerifier asks an address-reflection endpoint (ipinfo.io style JSON)
// for the current egress IP.
type HTTPVerifier struct {
	client *resty.Client
	url    string
}

// NewHTTPVerifier builds a verifier against the given probe URL.
func NewHTTPVerifier(probeURL string) *HTTPVerifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &HTTPVerifier{client: client, url: probeURL}
}

func (v *HTTPVerifier) ExternalAddr(ctx context.Context) (ExternalAddr, error) {
	var addr ExternalAddr
	resp, err := v.client.R().
		SetContext(ctx).
		SetResult(&addr).
		Get(v.url)
	if err != nil {
		return ExternalAddr{}, fmt.Errorf("probe %s: %w", v.url, err)
	}
	if resp.IsError() {
		return ExternalAddr{}, fmt.Errorf("probe %s: status %d", v.url, resp.StatusCode())
	}
	if addr.IP == "" {
		return ExternalAddr{}, fmt.Errorf("probe %s: empty address in response", v.url)
	}
	return addr, nil
}
