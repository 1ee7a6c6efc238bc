package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "zkconsent/pkg/domain-errors"
)

// GatewayStore fetches and pins credential documents through an HTTP
// content gateway. Every request is bounded by the configured fetch timeout
// so a stalled gateway cannot wedge the verification dispatcher.
type GatewayStore struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewGateway constructs a gateway-backed content store.
func NewGateway(baseURL string, timeout time.Duration) *GatewayStore {
	return &GatewayStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (s *GatewayStore) Get(ctx context.Context, cid string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build gateway request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeFetchTimeout,
				fmt.Sprintf("gateway did not answer within %s", s.timeout))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch credential document")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("gateway returned status %d for cid %s", resp.StatusCode, cid))
	}

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read credential document")
	}
	return doc, nil
}

func (s *GatewayStore) Put(ctx context.Context, doc []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/pins", bytes.NewReader(doc))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeFetchTimeout,
				fmt.Sprintf("gateway did not answer within %s", s.timeout))
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "pin credential document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("gateway returned status %d on pin", resp.StatusCode))
	}

	var out struct {
		CID string `json:"cid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "decode pin response")
	}
	if out.CID == "" {
		return "", dErrors.New(dErrors.CodeInternal, "gateway returned empty cid")
	}
	return out.CID, nil
}
