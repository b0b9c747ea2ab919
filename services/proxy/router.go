// Package proxy forwards requests to externally hosted game services. Every
// request reads the cached health of its target and fails fast when the
// target is down; health checks run in the background on a fixed interval.
package proxy

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/utils/apperr"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	// UpstreamTimeout bounds how long a forwarded request waits for the
	// upstream's response headers
	UpstreamTimeout time.Duration
}

type Router struct {
	cfg     Config
	targets []*Target
	byName  map[string]*Target
	proxies map[string]*httputil.ReverseProxy
	cache   *HealthCache
	client  *http.Client
	forward http.RoundTripper
	log     *logrus.Entry
	now     func() time.Time
}

// New builds a router over already validated targets (see ParseTargets)
func New(cfg Config, targets []Target) *Router {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = room_constants.DefaultHealthInterval
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = room_constants.DefaultHealthTimeout
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = room_constants.DefaultUpstreamTimeout
	}
	forward := http.DefaultTransport.(*http.Transport).Clone()
	forward.ResponseHeaderTimeout = cfg.UpstreamTimeout
	r := &Router{
		cfg:     cfg,
		byName:  make(map[string]*Target, len(targets)),
		proxies: make(map[string]*httputil.ReverseProxy, len(targets)),
		cache:   NewHealthCache(),
		client:  &http.Client{Timeout: cfg.HealthTimeout},
		forward: forward,
		log:     logrus.WithField("component", "proxy"),
		now:     time.Now,
	}
	for i := range targets {
		t := &targets[i]
		r.targets = append(r.targets, t)
		r.byName[t.Name] = t
		r.proxies[t.Name] = r.reverseProxy(t)
	}
	return r
}

func (r *Router) Cache() *HealthCache { return r.cache }

func (r *Router) Targets() []Target {
	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, *t)
	}
	return out
}

func (r *Router) reverseProxy(t *Target) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: r.forward,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = t.rewritePath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(t.upstream)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			if req.Context().Err() != nil {
				// client went away, the upstream is not at fault
				r.log.WithField("target", t.Name).WithError(err).Debug("[PROXY] request cancelled by client")
				return
			}
			r.log.WithField("target", t.Name).WithError(err).Warn("[PROXY] upstream failed, marking unhealthy")
			r.cache.MarkUnhealthy(t.Name, err.Error(), r.now())
			writeJSONError(w, http.StatusBadGateway,
				apperr.New(apperr.KindTransient, apperr.CodeUpstreamError, "the game service failed to answer").
					WithDetail("service", t.Name))
		},
	}
}

// CheckHealth checks one target with a bounded timeout and caches the result
func (r *Router) CheckHealth(ctx context.Context, t *Target) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	status := HealthStatus{CheckedAt: r.now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.healthURL(), nil)
	if err == nil {
		var resp *http.Response
		resp, err = r.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 400 {
				status.Healthy = true
			} else {
				err = fmt.Errorf("health endpoint answered %d", resp.StatusCode)
			}
		}
	}
	if err != nil {
		status.Error = err.Error()
	}

	prev, seen := r.cache.Get(t.Name)
	r.cache.Set(t.Name, status)
	if !seen || prev.Healthy != status.Healthy {
		entry := r.log.WithFields(logrus.Fields{"target": t.Name, "healthy": status.Healthy})
		if status.Healthy {
			entry.Info("[HEALTH] target is up")
		} else {
			entry.WithField("reason", status.Error).Warn("[HEALTH] target is down")
		}
	}
	return status
}

// CheckAll checks every target concurrently
func (r *Router) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range r.targets {
		wg.Add(1)
		go func(t *Target) {
			defer wg.Done()
			r.CheckHealth(ctx, t)
		}(t)
	}
	wg.Wait()
}

// Run refreshes the health cache until ctx is cancelled
func (r *Router) Run(ctx context.Context) {
	if len(r.targets) == 0 {
		return
	}
	r.CheckAll(ctx)
	ticker := time.NewTicker(r.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckAll(ctx)
		}
	}
}

// Health lists every target with its cached status. Targets that were never
// checked are reported as unhealthy.
func (r *Router) Health() []TargetHealth {
	out := make([]TargetHealth, 0, len(r.targets))
	for _, t := range r.targets {
		s, ok := r.cache.Get(t.Name)
		if !ok {
			s = HealthStatus{Error: "not checked yet"}
		}
		out = append(out, TargetHealth{Name: t.Name, Prefix: t.Prefix, HealthStatus: s})
	}
	return out
}

// Mount registers every target prefix on the gin router
func (r *Router) Mount(g gin.IRoutes) {
	for _, t := range r.targets {
		h := r.Route(t.Name)
		g.Any(t.Prefix, h)
		g.Any(t.Prefix+"/*path", h)
	}
}

// Route forwards to the named target when its cached health is good, and
// answers 503 right away otherwise. It never waits on a health check.
func (r *Router) Route(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := r.byName[name]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"code": apperr.CodeServiceUnavailable, "message": "unknown service"})
			return
		}
		if !r.cache.Healthy(name) {
			r.unavailable(c, t)
			return
		}
		r.proxies[name].ServeHTTP(c.Writer, c.Request)
	}
}

var maintenancePage = template.Must(template.New("maintenance").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Name}} is taking a break</title></head>
<body>
<h1>{{.Name}} is temporarily unavailable</h1>
<p>The game service is not answering right now. This page will work again in about {{.RetryAfter}} seconds.</p>
<p><a href="/">Back to the lobby</a></p>
</body>
</html>
`))

func (r *Router) unavailable(c *gin.Context, t *Target) {
	retry := int(r.cfg.HealthInterval.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.Header("Cache-Control", "no-store")

	if wantsHTML(c.Request) {
		c.Status(http.StatusServiceUnavailable)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := maintenancePage.Execute(c.Writer, gin.H{"Name": t.Name, "RetryAfter": retry}); err != nil {
			r.log.WithError(err).Error("[PROXY] rendering maintenance page")
		}
		c.Abort()
		return
	}
	err := apperr.New(apperr.KindTransient, apperr.CodeServiceUnavailable, "the game service is temporarily unavailable").
		WithDetail("service", t.Name).
		WithDetail("retry_after", retry)
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody(err))
}

func wantsHTML(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func errorBody(e *apperr.Error) gin.H {
	return gin.H{"code": e.Code, "message": e.Message, "details": e.Details}
}
