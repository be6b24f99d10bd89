package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cristianoliveira/freshshell/internal/policy"
	"github.com/cristianoliveira/freshshell/internal/version"
	"github.com/valyala/fasthttp"
)

// Fetcher performs network requests for the agent.
type Fetcher interface {
	Fetch(ctx context.Context, req policy.Request) (Response, error)
}

// FastHTTPFetcher fetches over a fasthttp client.
type FastHTTPFetcher struct {
	client  *fasthttp.Client
	timeout time.Duration
}

var _ Fetcher = (*FastHTTPFetcher)(nil)

// NewFastHTTPFetcher creates a fetcher whose requests time out after timeout
// unless the context carries an earlier deadline.
func NewFastHTTPFetcher(timeout time.Duration) *FastHTTPFetcher {
	return NewFastHTTPFetcherWithClient(&fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}, timeout)
}

// NewFastHTTPFetcherWithClient wraps an existing client.
func NewFastHTTPFetcherWithClient(client *fasthttp.Client, timeout time.Duration) *FastHTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FastHTTPFetcher{client: client, timeout: timeout}
}

// Fetch sends req and copies the response out of fasthttp's pooled buffers.
func (f *FastHTTPFetcher) Fetch(ctx context.Context, req policy.Request) (Response, error) {
	if req.URL == nil {
		return Response{}, fmt.Errorf("%w: request without URL", ErrNetwork)
	}
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("%w: %s: %v", ErrNetwork, req.Key(), err)
	}

	r := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(r)
	defer fasthttp.ReleaseResponse(resp)

	r.SetRequestURI(req.Key())
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	r.Header.SetMethod(method)
	for k, vs := range req.Header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}
	if len(r.Header.UserAgent()) == 0 {
		r.Header.SetUserAgent(version.UserAgent())
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(f.timeout)
	}
	if err := f.client.DoDeadline(r, resp, deadline); err != nil {
		return Response{}, fmt.Errorf("%w: %s: %v", ErrNetwork, req.Key(), err)
	}

	header := make(http.Header)
	resp.Header.VisitAll(func(k, v []byte) {
		header.Add(string(k), string(v))
	})
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return Response{
		Status: resp.StatusCode(),
		Header: header,
		Body:   body,
		Source: SourceNetwork,
	}, nil
}

// fetchWithTimeout runs f.Fetch and gives up when timeout elapses or ctx is
// done, whichever comes first. A zero timeout only honours ctx.
func fetchWithTimeout(ctx context.Context, f Fetcher, req policy.Request, timeout time.Duration) (Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := f.Fetch(ctx, req)
		done <- result{resp, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && !errors.Is(res.err, ErrNetwork) {
			return Response{}, fmt.Errorf("%w: %s: %v", ErrNetwork, req.Key(), res.err)
		}
		return res.resp, res.err
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: %s: %v", ErrNetwork, req.Key(), ctx.Err())
	}
}
