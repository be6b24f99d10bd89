package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/policy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// MetricsPath is reserved on the proxy for Prometheus scraping.
const MetricsPath = "/__freshshell/metrics"

const (
	HeaderSource  = "X-Freshshell-Source"
	HeaderVersion = "X-Freshshell-Version"
)

// hopHeaders are connection-scoped and never forwarded. Accept-Encoding is
// dropped so cached bodies are stored as identity content.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
	"Content-Length":      true,
	"Accept-Encoding":     true,
	"Proxy-Authorization": true,
}

// ErrForeignHost rejects absolute-form requests for hosts the proxy does not front.
var ErrForeignHost = errors.New("host not served by this proxy")

// Handler resolves intercepted requests. *Container and *Agent implement it.
type Handler interface {
	Handle(ctx context.Context, req policy.Request) (Response, error)
}

// Server exposes a Handler as an HTTP proxy in front of the origin.
type Server struct {
	handler        Handler
	origin         *url.URL
	allowed        policy.Matcher
	log            logging.Logger
	requestTimeout time.Duration
	server         *fasthttp.Server
	scrape         fasthttp.RequestHandler
}

// NewServer creates a proxy. Relative request URIs are resolved against
// origin. Absolute-form URIs are forwarded only when their host is the
// origin's or one of allowedHosts (subdomains included); others get 403.
func NewServer(h Handler, origin *url.URL, metrics *Metrics, logger logging.Logger, allowedHosts ...string) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		handler:        h,
		origin:         origin,
		allowed:        policy.HostIn(append([]string{origin.Hostname()}, allowedHosts...)...),
		log:            logger.With("component", "proxy"),
		requestTimeout: 30 * time.Second,
	}
	s.server = &fasthttp.Server{
		Handler:         s.ServeFastHTTP,
		Name:            "freshshell",
		ReadTimeout:     s.requestTimeout,
		WriteTimeout:    s.requestTimeout,
		IdleTimeout:     time.Minute,
		CloseOnShutdown: true,
	}
	if metrics != nil {
		s.scrape = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return s
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("proxy listening", "addr", ln.Addr().String(), "origin", s.origin.String())
	return s.server.Serve(ln)
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

// ServeFastHTTP handles one proxied request.
func (s *Server) ServeFastHTTP(ctx *fasthttp.RequestCtx) {
	if s.scrape != nil && string(ctx.Path()) == MetricsPath {
		s.scrape(ctx)
		return
	}

	req, err := s.toRequest(ctx)
	if err != nil {
		if errors.Is(err, ErrForeignHost) {
			s.log.Warn("rejected request for foreign host", "uri", string(ctx.RequestURI()))
			ctx.Error(err.Error(), fasthttp.StatusForbidden)
			return
		}
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	resp, err := s.handler.Handle(reqCtx, req)
	if err != nil {
		s.log.Warn("request failed", "method", req.Method, "url", req.Key(), "error", err)
		if errors.Is(err, ErrNetwork) {
			ctx.Error("freshshell: upstream unavailable", fasthttp.StatusBadGateway)
			return
		}
		ctx.Error("freshshell: internal error", fasthttp.StatusInternalServerError)
		return
	}

	for k, vs := range resp.Header {
		if hopHeaders[k] {
			continue
		}
		for _, v := range vs {
			ctx.Response.Header.Add(k, v)
		}
	}
	ctx.Response.Header.Set(HeaderSource, string(resp.Source))
	if resp.Version != "" {
		ctx.Response.Header.Set(HeaderVersion, resp.Version)
	}
	ctx.SetStatusCode(resp.Status)
	ctx.SetBody(resp.Body)
	s.log.Debug("served", "method", req.Method, "url", req.Key(), "status", resp.Status, "source", resp.Source)
}

func (s *Server) toRequest(ctx *fasthttp.RequestCtx) (policy.Request, error) {
	raw := string(ctx.Request.Header.RequestURI())
	ref, err := url.Parse(raw)
	if err != nil {
		return policy.Request{}, fmt.Errorf("invalid request uri %q: %w", raw, err)
	}
	target := ref
	if !ref.IsAbs() {
		target = s.origin.ResolveReference(ref)
	} else if !s.allowed(policy.Request{URL: ref}) {
		return policy.Request{}, fmt.Errorf("%w: %s", ErrForeignHost, ref.Host)
	}

	header := make(http.Header)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		if !hopHeaders[key] {
			header.Add(key, string(v))
		}
	})

	var body []byte
	if b := ctx.PostBody(); len(b) > 0 {
		body = make([]byte, len(b))
		copy(body, b)
	}

	return policy.Request{
		Method: string(ctx.Method()),
		URL:    target,
		Mode:   requestMode(string(ctx.Method()), header),
		Header: header,
		Body:   body,
	}, nil
}

// requestMode uses Sec-Fetch-Mode when the client sends it and otherwise
// treats GETs accepting HTML as navigations.
func requestMode(method string, header http.Header) policy.Mode {
	switch policy.Mode(strings.ToLower(header.Get("Sec-Fetch-Mode"))) {
	case policy.ModeNavigate:
		return policy.ModeNavigate
	case policy.ModeCORS:
		return policy.ModeCORS
	case policy.ModeSameOrigin:
		return policy.ModeSameOrigin
	case policy.ModeNoCORS:
		return policy.ModeNoCORS
	}
	if method == fasthttp.MethodGet && strings.Contains(header.Get("Accept"), "text/html") {
		return policy.ModeNavigate
	}
	return policy.ModeNoCORS
}
