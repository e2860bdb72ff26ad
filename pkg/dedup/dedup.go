// Package dedup suppresses duplicate and near-duplicate chat events before
// they reach the orchestrator. A Guard is single-process; it owns its tables
// and nothing else reads or writes them.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xhad/askdocs/pkg/logger"
	"github.com/xhad/askdocs/pkg/metrics"
	"go.uber.org/zap"
)

// FingerprintRunes is how much of the normalized query identifies a request.
const FingerprintRunes = 100

type Reason string

const (
	ReasonAlreadyProcessing Reason = "already_processing"
	ReasonRecentlyProcessed Reason = "recently_processed"
)

type Decision struct {
	Proceed bool
	Reason  Reason
}

// Clock is injected so tests can move time without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	// Platform labels metrics and logs.
	Platform          string
	TTL               time.Duration
	ProcessingTimeout time.Duration
	SweepInterval     time.Duration
	// SweepBatch caps how many entries one sweep tick may visit so the lock
	// is never held for an unbounded time.
	SweepBatch int
	Clock      Clock
}

type processingEntry struct {
	fingerprint string
	startedAt   time.Time
}

type Stats struct {
	Processing int
	Completed  int
}

type Guard struct {
	config  Config
	logger  *zap.Logger
	metrics *metrics.Recorder

	mu sync.Mutex
	// processing is keyed by fingerprint|eventType|eventID|timestamp.
	processing map[string]processingEntry
	// inFlight counts processing entries per fingerprint.
	inFlight map[string]int
	// completed maps a fingerprint to its completion time.
	completed map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(config Config, log *zap.Logger, rec *metrics.Recorder) *Guard {
	if config.TTL <= 0 {
		config.TTL = 3 * time.Second
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = 2 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 10 * time.Second
	}
	if config.SweepBatch <= 0 {
		config.SweepBatch = 500
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	return &Guard{
		config:     config,
		logger:     logger.OrNop(log).Named("dedup").With(zap.String("platform", config.Platform)),
		metrics:    rec,
		processing: make(map[string]processingEntry),
		inFlight:   make(map[string]int),
		completed:  make(map[string]time.Time),
	}
}

// Fingerprint identifies a request by user and the first 100 runes of the
// normalized query.
func Fingerprint(userID, normalizedQuery string) string {
	q := normalizedQuery
	if utf8.RuneCountInString(q) > FingerprintRunes {
		q = string([]rune(q)[:FingerprintRunes])
	}
	return userID + "\x00" + q
}

// ShouldProcess reports whether a request may start. It does not reserve
// anything; use TryAcquire when the check and the insert must be atomic.
func (g *Guard) ShouldProcess(userID, normalizedQuery, eventType, eventID string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decide(Fingerprint(userID, normalizedQuery))
}

// MarkProcessing records a request as in flight and returns its key.
func (g *Guard) MarkProcessing(userID, normalizedQuery, eventType, eventID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insert(Fingerprint(userID, normalizedQuery), eventType, eventID)
}

// TryAcquire runs the duplicate check and the processing insert under one
// lock. Of two concurrent identical requests exactly one proceeds.
func (g *Guard) TryAcquire(userID, normalizedQuery, eventType, eventID string) (string, Decision) {
	fp := Fingerprint(userID, normalizedQuery)

	g.mu.Lock()
	d := g.decide(fp)
	key := ""
	if d.Proceed {
		key = g.insert(fp, eventType, eventID)
	}
	g.mu.Unlock()

	decision := "proceed"
	if !d.Proceed {
		decision = string(d.Reason)
		g.logger.Debug("duplicate request suppressed",
			zap.String("user_id", userID),
			zap.String("event_id", eventID),
			zap.String("reason", decision))
	}
	g.metrics.DedupDecision(g.config.Platform, decision)
	return key, d
}

// MarkCompleted moves a request from processing to completed. Call it on
// success and on failure.
func (g *Guard) MarkCompleted(key, userID, normalizedQuery string) {
	fp := Fingerprint(userID, normalizedQuery)
	now := g.config.Clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.processing[key]; ok {
		g.removeProcessing(key, e)
	}
	g.completed[fp] = now
}

func (g *Guard) decide(fp string) Decision {
	if g.inFlight[fp] > 0 {
		return Decision{Reason: ReasonAlreadyProcessing}
	}
	if at, ok := g.completed[fp]; ok && g.config.Clock.Now().Sub(at) < g.config.TTL {
		return Decision{Reason: ReasonRecentlyProcessed}
	}
	return Decision{Proceed: true}
}

func (g *Guard) insert(fp, eventType, eventID string) string {
	now := g.config.Clock.Now()
	key := fmt.Sprintf("%s|%s|%s|%d", fp, eventType, eventID, now.UnixNano())
	if _, exists := g.processing[key]; !exists {
		g.inFlight[fp]++
	}
	g.processing[key] = processingEntry{fingerprint: fp, startedAt: now}
	return key
}

func (g *Guard) removeProcessing(key string, e processingEntry) {
	delete(g.processing, key)
	if g.inFlight[e.fingerprint] <= 1 {
		delete(g.inFlight, e.fingerprint)
	} else {
		g.inFlight[e.fingerprint]--
	}
}

// Sweep evicts expired completed entries and force-removes processing
// entries older than the processing timeout. It visits at most SweepBatch
// entries per table and returns how many leaked entries it removed.
func (g *Guard) Sweep() (expired, leaked int) {
	now := g.config.Clock.Now()

	g.mu.Lock()
	visited := 0
	for fp, at := range g.completed {
		if visited >= g.config.SweepBatch {
			break
		}
		visited++
		if now.Sub(at) >= g.config.TTL {
			delete(g.completed, fp)
			expired++
		}
	}

	visited = 0
	var leakedKeys []string
	for key, e := range g.processing {
		if visited >= g.config.SweepBatch {
			break
		}
		visited++
		if now.Sub(e.startedAt) >= g.config.ProcessingTimeout {
			g.removeProcessing(key, e)
			leakedKeys = append(leakedKeys, key)
		}
	}
	g.mu.Unlock()

	leaked = len(leakedKeys)
	if leaked > 0 {
		g.logger.Warn("removed leaked processing entries",
			zap.Int("count", leaked),
			zap.Duration("timeout", g.config.ProcessingTimeout))
		g.metrics.DedupLeaked(g.config.Platform, leaked)
	}
	return expired, leaked
}

func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{Processing: len(g.processing), Completed: len(g.completed)}
}

// Start runs Sweep every SweepInterval until ctx is done or Stop is called.
func (g *Guard) Start(ctx context.Context) {
	g.mu.Lock()
	if g.done != nil {
		g.mu.Unlock()
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep()
			}
		}
	}()
}

// Stop ends the sweeper and waits for it to exit. Calling it without a
// running sweeper is a no-op.
func (g *Guard) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
