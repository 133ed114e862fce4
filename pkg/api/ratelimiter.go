package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestKind separates cheap JSON lookups from requests that render
// images. Both are serialised per client; renders also wait out a cooldown.
type RequestKind int

const (
	// RequestGeneral covers /api/layers, /api/sources and /api/levels.
	RequestGeneral RequestKind = iota
	// RequestRender covers QR PNG rendering.
	RequestRender
)

// RateLimiter queues requests per client IP. One goroutine per IP owns that
// client's queue, so a single browser hammering the sidebar cannot build
// many layer documents in parallel.
type RateLimiter struct {
	renderCooldown time.Duration
	requests       chan keyedRequest
	now            func() time.Time
}

type keyedRequest struct {
	ip  string
	req ipRequest
}

type ipRequest struct {
	ctx      context.Context
	kind     RequestKind
	response chan acquireResponse
}

type acquireResponse struct {
	release chan struct{}
	waited  time.Duration
	err     error
}

// Permit is an acquired slot. Release it when the handler is done.
type Permit struct {
	release chan struct{}
	Waited  time.Duration
}

// Release lets the next queued request of the same client proceed.
// Double releases are harmless.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// NewRateLimiter starts the dispatcher goroutine.
func NewRateLimiter(renderCooldown time.Duration) *RateLimiter {
	l := &RateLimiter{
		renderCooldown: renderCooldown,
		requests:       make(chan keyedRequest),
		now:            time.Now,
	}
	go l.loop()
	return l
}

// Acquire waits for the client's turn. A nil limiter grants everything.
func (l *RateLimiter) Acquire(ctx context.Context, ip string, kind RequestKind) (*Permit, error) {
	if l == nil {
		return &Permit{}, nil
	}
	respCh := make(chan acquireResponse, 1)
	req := ipRequest{ctx: ctx, kind: kind, response: respCh}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- keyedRequest{ip: ip, req: req}:
	}

	select {
	case <-ctx.Done():
		// Every queued request gets exactly one reply; hand a late grant
		// straight back so the client's queue keeps moving.
		go func() {
			if resp := <-respCh; resp.release != nil {
				close(resp.release)
			}
		}()
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return &Permit{release: resp.release, Waited: resp.waited}, nil
	}
}

func (l *RateLimiter) loop() {
	workers := make(map[string]chan ipRequest)
	for keyed := range l.requests {
		ch, ok := workers[keyed.ip]
		if !ok {
			ch = make(chan ipRequest, 16)
			workers[keyed.ip] = ch
			go l.runIPWorker(ch)
		}
		select {
		case ch <- keyed.req:
		case <-keyed.req.ctx.Done():
			keyed.req.response <- acquireResponse{err: keyed.req.ctx.Err()}
		}
	}
}

func (l *RateLimiter) runIPWorker(requests <-chan ipRequest) {
	var lastRender time.Time

	for req := range requests {
		start := l.now()
		if req.kind == RequestRender && !lastRender.IsZero() {
			if wait := lastRender.Add(l.renderCooldown).Sub(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-req.ctx.Done():
					timer.Stop()
					req.response <- acquireResponse{err: req.ctx.Err()}
					continue
				case <-timer.C:
				}
			}
		}

		release := make(chan struct{})
		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		case req.response <- acquireResponse{release: release, waited: l.now().Sub(start)}:
		}

		<-release

		if req.kind == RequestRender {
			lastRender = l.now()
		}
	}
}

// ClientIP prefers the first X-Forwarded-For hop and falls back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
