package ndf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httpclient"
)

const maxBodyBytes = 4 << 20

var fetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ndf_fetch_total",
		Help: "NDF fetch attempts by source and result",
	},
	[]string{"source", "result"},
)

// Getter is satisfied by *httpclient.CircuitBreakerClient.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Mirror is one upstream NDF location.
type Mirror struct {
	URL    string
	Client Getter
}

// NewMirror wraps client in a circuit breaker dedicated to rawURL.
func NewMirror(rawURL string, client *httpclient.Client, logger *slog.Logger) Mirror {
	name := "ndf-mirror"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		name = "ndf-mirror-" + u.Host
	}
	return Mirror{
		URL:    rawURL,
		Client: httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig(name), logger),
	}
}

// MirrorError records why one mirror could not serve the NDF.
type MirrorError struct {
	Source string
	Err    error
}

// FetchError is returned when every mirror failed.
type FetchError struct {
	Attempts []MirrorError
}

func (e *FetchError) Error() string {
	return "all NDF mirrors failed: " + strings.Join(e.Details(), "; ")
}

// Details lists one "<source>: <error>" line per mirror.
func (e *FetchError) Details() []string {
	out := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	return out
}

type fetchResult struct {
	ndf     *domain.SignedNDF
	doc     *Document
	latency time.Duration
}

// Fetcher retrieves the NDF from the configured mirrors in order, caching
// the first success.
type Fetcher struct {
	mirrors  []Mirror
	cache    repository.NDFCache
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time

	// latencyMS is the duration of the last successful upstream fetch.
	latencyMS atomic.Int64
}

func NewFetcher(mirrors []Mirror, cache repository.NDFCache, cacheTTL time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		mirrors:  mirrors,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Fetch returns the cached NDF or fetches a fresh one. Concurrent callers
// share a single upstream walk.
func (f *Fetcher) Fetch(ctx context.Context) (*domain.SignedNDF, error) {
	cached, err := f.cache.Get(ctx)
	if err == nil {
		fetchTotal.WithLabelValues("cache", "hit").Inc()
		return cached, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		f.logger.WarnContext(ctx, "ndf cache read failed", slog.String("error", err.Error()))
	}

	res, err := f.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return res.ndf, nil
}

// Health derives network health from the cached NDF, fetching upstream only
// on a cache miss. It never fails: any error is reported as a degraded
// network with zeroed metrics.
func (f *Fetcher) Health(ctx context.Context) domain.NetworkHealth {
	now := f.now().UTC()
	doc, err := f.healthDocument(ctx)
	if err != nil {
		f.logger.WarnContext(ctx, "network health degraded", slog.String("error", err.Error()))
		return domain.DegradedHealth(now)
	}

	total := len(doc.Nodes)
	active := doc.ActiveNodes()
	status := domain.NetworkDegraded
	if total > 0 && active*3 >= total*2 {
		status = domain.NetworkHealthy
	}

	var lastRound int64
	if !doc.Timestamp.IsZero() {
		lastRound = doc.Timestamp.Unix()
	}

	return domain.NetworkHealth{
		Status:             status,
		TotalNodes:         total,
		ActiveNodes:        active,
		AverageLatency:     f.latencyMS.Load(),
		LastRoundCompleted: lastRound,
		Timestamp:          now,
	}
}

func (f *Fetcher) healthDocument(ctx context.Context) (*Document, error) {
	cached, err := f.cache.Get(ctx)
	if err == nil {
		_, _, doc, perr := Parse([]byte(cached.NDF))
		if perr == nil {
			fetchTotal.WithLabelValues("cache", "hit").Inc()
			return doc, nil
		}
		f.logger.WarnContext(ctx, "cached ndf unreadable", slog.String("error", perr.Error()))
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		f.logger.WarnContext(ctx, "ndf cache read failed", slog.String("error", err.Error()))
	}

	res, err := f.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return res.doc, nil
}

func (f *Fetcher) refresh(ctx context.Context) (*fetchResult, error) {
	v, err, _ := f.group.Do("ndf", func() (any, error) {
		res, err := f.fetchMirrors(ctx)
		if err != nil {
			return nil, err
		}
		f.latencyMS.Store(res.latency.Milliseconds())
		if err := f.cache.Set(ctx, res.ndf, f.cacheTTL); err != nil {
			f.logger.WarnContext(ctx, "ndf cache write failed", slog.String("error", err.Error()))
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fetchResult), nil
}

func (f *Fetcher) fetchMirrors(ctx context.Context) (*fetchResult, error) {
	fetchErr := &FetchError{}
	for _, m := range f.mirrors {
		start := f.now()
		res, err := f.fetchOne(ctx, m)
		if err != nil {
			result := "error"
			if errors.Is(err, httpclient.ErrCircuitOpen) {
				result = "circuit_open"
			}
			fetchTotal.WithLabelValues(m.URL, result).Inc()
			f.logger.WarnContext(ctx, "ndf mirror failed",
				slog.String("source", m.URL),
				slog.String("error", err.Error()),
			)
			fetchErr.Attempts = append(fetchErr.Attempts, MirrorError{Source: m.URL, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		res.latency = f.now().Sub(start)
		fetchTotal.WithLabelValues(m.URL, "success").Inc()
		f.logger.InfoContext(ctx, "ndf fetched",
			slog.String("source", m.URL),
			slog.Int("nodes", len(res.doc.Nodes)),
			slog.Int64("latency_ms", res.latency.Milliseconds()),
		)
		return res, nil
	}
	return nil, fetchErr
}

func (f *Fetcher) fetchOne(ctx context.Context, m Mirror) (*fetchResult, error) {
	resp, err := m.Client.Get(ctx, m.URL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, m.URL)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	raw, signature, doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	return &fetchResult{
		ndf: &domain.SignedNDF{
			NDF:       string(raw),
			Signature: signature,
			Timestamp: f.now().UTC(),
			Source:    m.URL,
		},
		doc: doc,
	}, nil
}
