package elector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/canopy-network/aedpos/lib"
	"github.com/cenkalti/backoff/v4"
)

/*
	HTTPElector reaches the election service of the chain over a small JSON API:
	- GET  <url>/v1/victories/<term>  -> VictoriesResponse
	- POST <url>/v1/evil              <- EvilMinersRequest

	Requests are retried with exponential backoff until MaxElapsedMS. A 4xx response is never retried.
*/

const (
	VictoriesRoutePath = "/v1/victories/"
	EvilRoutePath      = "/v1/evil"
	applicationJSON    = "application/json; charset=utf-8"
)

var _ lib.ElectorI = &HTTPElector{}

// VictoriesResponse is the ordered miner list of a term
type VictoriesResponse struct {
	Term   uint64   `json:"term"`
	Miners []string `json:"miners"`
}

// EvilMinersRequest reports miners that missed too many slots in a term
type EvilMinersRequest struct {
	Term    uint64   `json:"term"`
	Pubkeys []string `json:"pubkeys"`
}

// HTTPElector is the client of a remote election service
type HTTPElector struct {
	url        string                 // base url of the service
	client     http.Client            // bounded by the request timeout
	maxElapsed time.Duration          // total retry time of a single call
	newBackOff func() backoff.BackOff // retry policy
	log        lib.LoggerI
}

// NewHTTPElector() creates the client from the elector options
func NewHTTPElector(config lib.ElectorConfig, log lib.LoggerI) *HTTPElector {
	e := &HTTPElector{
		url:        strings.TrimSuffix(config.ElectorURL, "/"),
		client:     http.Client{Timeout: time.Duration(config.RequestTimeoutMS) * time.Millisecond},
		maxElapsed: time.Duration(config.MaxElapsedMS) * time.Millisecond,
		log:        log,
	}
	e.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxElapsedTime = e.maxElapsed
		return b
	}
	return e
}

// GetVictories() fetches the miner list elected for a term
func (e *HTTPElector) GetVictories(ctx context.Context, term uint64) ([]string, lib.ErrorI) {
	resp := new(VictoriesResponse)
	if err := e.do(ctx, http.MethodGet, fmt.Sprintf("%s%s%d", e.url, VictoriesRoutePath, term), nil, resp); err != nil {
		return nil, err
	}
	if resp.Term != term {
		return nil, ErrElectorRequest(fmt.Errorf("asked for term %d, got %d", term, resp.Term))
	}
	return resp.Miners, nil
}

// ReportEvilMiners() posts the evil miners of a term
func (e *HTTPElector) ReportEvilMiners(ctx context.Context, term uint64, pubkeys []string) lib.ErrorI {
	bz, err := lib.MarshalJSON(EvilMinersRequest{Term: term, Pubkeys: pubkeys})
	if err != nil {
		return err
	}
	return e.do(ctx, http.MethodPost, e.url+EvilRoutePath, bz, nil)
}

// do() executes a request with retries and decodes the response into ptr if not nil
func (e *HTTPElector) do(ctx context.Context, method, url string, body []byte, ptr any) lib.ErrorI {
	var result lib.ErrorI
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			result = ErrElectorRequest(err)
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", applicationJSON)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			result = ErrElectorRequest(err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bz, err := io.ReadAll(io.LimitReader(resp.Body, int64(units.MB)))
		if err != nil {
			result = ErrElectorRequest(err)
			return err
		}
		switch {
		case resp.StatusCode >= 500:
			result = ErrElectorResponse(resp.StatusCode, bz)
			return result
		case resp.StatusCode != http.StatusOK:
			result = ErrElectorResponse(resp.StatusCode, bz)
			return backoff.Permanent(result)
		}
		if ptr != nil {
			if err = json.Unmarshal(bz, ptr); err != nil {
				result = lib.ErrJSONUnmarshal(err)
				return backoff.Permanent(err)
			}
		}
		result = nil
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.log.Debugf("Elector %s %s attempt %d failed, retrying in %s: %s", method, url, attempt, wait, err.Error())
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(e.newBackOff(), ctx), notify); err != nil && result == nil {
		result = ErrElectorRequest(err)
	}
	return result
}
