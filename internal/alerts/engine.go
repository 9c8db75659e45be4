package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

const (
	defaultCooldown     = 15 * time.Minute
	defaultRetryBackoff = 500 * time.Millisecond
	maxHistoryLen       = 200
	recentWindowHours   = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	ResultID   string     `json:"result_id"`
	ResultName string     `json:"result_name"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Observer is notified of every fired alert. *metrics.Registry satisfies it.
type Observer interface {
	ObserveAlert(severity string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers o to be told about fired alerts.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithHTTPClient replaces the client used for webhook delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithRetryBackoff sets the wait before the first webhook retry. It doubles
// on every further attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryBackoff = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine evaluates alert rules against computed test results and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	observer Observer
	client   *http.Client
	now      func() time.Time

	retryBackoff time.Duration

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:resultID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts

	inflight sync.WaitGroup
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid and Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, opts ...Option) *Engine {
	e := &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,

		retryBackoff: defaultRetryBackoff,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate tests all configured rules against res.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved, which
// is how a corrective edit clears an alert raised on the original upload.
func (e *Engine) Evaluate(res *types.TestResult) {
	if len(e.rules) == 0 || res == nil {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		key := rule.Name + ":" + res.ID
		fires, value := evalCondition(rule.Condition, res)

		if fires {
			e.fire(key, rule, res, value, now)
		} else {
			e.resolve(key, rule, res, now)
		}
	}
}

func (e *Engine) fire(key string, rule config.AlertRule, res *types.TestResult, value float64, now time.Time) {
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	e.mu.Lock()
	if _, firing := e.active[key]; firing {
		e.mu.Unlock()
		return
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		e.mu.Unlock()
		return
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:         uuid.NewString(),
		RuleName:   rule.Name,
		ResultID:   res.ID,
		ResultName: res.Name,
		Severity:   sev,
		Value:      value,
		Message: fmt.Sprintf("[%s] %s fired on %s (%s): %s, value %.2f",
			sev, rule.Name, res.Name, res.ID, rule.Condition, value),
		FiredAt: now,
		State:   StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alerts: alert fired",
		"rule", rule.Name,
		"result", res.ID,
		"value", value,
		"severity", sev,
	)
	if e.observer != nil {
		e.observer.ObserveAlert(sev)
	}
	e.dispatch(&alertCopy)
}

func (e *Engine) resolve(key string, rule config.AlertRule, res *types.TestResult, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alerts: alert resolved",
		"rule", rule.Name,
		"result", res.ID,
	)
	e.dispatch(&alertCopy)
}

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.After(out[j].FiredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
