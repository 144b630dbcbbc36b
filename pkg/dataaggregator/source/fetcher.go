package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const maxResponseSize = 8 << 20

// Fetcher is the shared HTTP GET + JSON decode used by the upstream adapters
type Fetcher struct {
	Name      string
	UserAgent string

	Client  *http.Client
	Limiter *rate.Limiter
}

func NewFetcher(name string, timeout time.Duration, requestsPerSecond float64, userAgent string) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &Fetcher{
		Name:      name,
		UserAgent: userAgent,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		Limiter: limiter,
	}
}

// GetJSON performs a GET and decodes the body into target.
// Transport failures and non-2xx statuses are network errors, undecodable bodies are malformed responses.
func (f *Fetcher) GetJSON(ctx context.Context, url string, target any) error {
	if err := f.Limiter.Wait(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindNetwork, f.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.KindInvalidRequest, f.Name, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.KindNetwork, f.Name, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("source", f.Name).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(started)).
		Msg("Upstream request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return pkgerrors.Wrap(pkgerrors.KindNetwork, f.Name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.KindNetwork, f.Name, err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindMalformedResponse, f.Name, err)
	}

	return nil
}
