package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"neplus.org/internal/access"
	"neplus.org/internal/obs"
)

const (
	defaultCapacity     = 10_000
	authFailureWindow   = time.Hour
	authFailureAlertMin = 5
	largeAmountFloor    = 10_000_000
)

// Notifier delivers high-severity events to an external monitoring
// collaborator. Delivery is best-effort; errors are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Archiver persists events outside the process. An archive failure fails
// the audited operation: an un-logged privileged action is a compliance
// gap.
type Archiver interface {
	Archive(ctx context.Context, ev Event) error
}

// Asset describes the token whose transfers are audited. Supply is
// declared by the tokenomics collaborator, not tracked here.
type Asset struct {
	Symbol      string
	Authority   string
	TotalSupply int64
}

// Auditor is the append-only security audit log. Events are retained in a
// bounded in-memory ring; the optional Archiver receives every event
// before it is committed.
type Auditor struct {
	mu       sync.RWMutex
	buf      []Event
	head     int
	count    int
	capacity int
	total    uint64

	notifier Notifier
	archiver Archiver
	now      func() time.Time

	sensitivePerms map[access.Permission]struct{}
	sensitiveRoles map[access.Role]struct{}
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithCapacity bounds the retained event window.
func WithCapacity(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithNotifier sets the monitoring hook for high-severity events.
func WithNotifier(n Notifier) Option {
	return func(a *Auditor) { a.notifier = n }
}

// WithArchiver sets the durable event sink.
func WithArchiver(ar Archiver) Option {
	return func(a *Auditor) { a.archiver = ar }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

// New creates an Auditor with a bounded in-memory log.
func New(opts ...Option) *Auditor {
	a := &Auditor{
		capacity: defaultCapacity,
		now:      time.Now,
		sensitivePerms: map[access.Permission]struct{}{
			access.PermManagePlatform: {},
			access.PermManageRoles:    {},
			access.PermManageUsers:    {},
		},
		sensitiveRoles: map[access.Role]struct{}{
			access.RoleAdmin:   {},
			access.RoleCreator: {},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.buf = make([]Event, a.capacity)
	return a
}

// ContractCall records a protocol-level call. Severity starts at INFO and
// escalates to HIGH when the structured payload matches a suspicious
// pattern.
func (a *Auditor) ContractCall(ctx context.Context, program, instruction string, accounts []string, details map[string]any) error {
	actor := ""
	if len(accounts) > 0 {
		actor = accounts[0]
	}
	ev := a.newEvent(TypeContractCall, SeverityInfo, actor, program, details)
	ev.Details["instruction"] = instruction
	ev.Details["accounts"] = append([]string(nil), accounts...)

	if reason, ok := suspiciousCall(accounts, details); ok {
		escalate(&ev, reason)
	}
	return a.append(ctx, ev)
}

// TokenTransfer records a mint, burn or transfer of the platform token.
// Transfers above 10% of the declared total supply escalate to HIGH.
func (a *Auditor) TokenTransfer(ctx context.Context, operation string, asset Asset, amount int64, from, to string) error {
	actor := from
	if actor == "" {
		actor = asset.Authority
	}
	ev := a.newEvent(TypeTokenTransfer, SeverityInfo, actor, to, map[string]any{
		"operation": operation,
		"amount":    amount,
		"token":     asset.Symbol,
	})

	if asset.TotalSupply > 0 && amount > asset.TotalSupply/10 {
		escalate(&ev, "large_transfer")
	}
	return a.append(ctx, ev)
}

// PermissionChange records a grant or revoke of a custom permission.
// Changes to platform-management permissions escalate to HIGH.
func (a *Auditor) PermissionChange(ctx context.Context, actor string, perm access.Permission, action string) error {
	ev := a.newEvent(TypePermissionChange, SeverityMedium, actor, "", map[string]any{
		"permission": string(perm),
		"action":     action,
	})

	if _, ok := a.sensitivePerms[perm]; ok {
		escalate(&ev, "sensitive_permission")
	}
	return a.append(ctx, ev)
}

// RoleChange records a role assignment or removal. Admin and creator role
// changes escalate to HIGH.
func (a *Auditor) RoleChange(ctx context.Context, actor string, role access.Role, action string) error {
	ev := a.newEvent(TypeRoleChange, SeverityMedium, actor, "", map[string]any{
		"role":   string(role),
		"action": action,
	})

	if _, ok := a.sensitiveRoles[role]; ok {
		escalate(&ev, "sensitive_role")
	}
	return a.append(ctx, ev)
}

// AuthAttempt records an authentication attempt. Five or more failures by
// the same actor inside the trailing hour escalate to HIGH, counting the
// attempt being recorded.
func (a *Auditor) AuthAttempt(ctx context.Context, actor string, success bool, method string) error {
	sev := SeverityInfo
	if !success {
		sev = SeverityLow
	}
	ev := a.newEvent(TypeAuthAttempt, sev, actor, "", map[string]any{
		"success": success,
		"method":  method,
	})

	// The failure count and the append share one critical section so two
	// concurrent failures cannot observe the same count.
	a.mu.Lock()
	defer a.mu.Unlock()
	if !success && a.recentAuthFailures(actor, ev.Timestamp)+1 >= authFailureAlertMin {
		escalate(&ev, "repeated_failures")
	}
	return a.appendLocked(ctx, ev)
}

// AccessViolation records a denied privileged operation.
func (a *Auditor) AccessViolation(ctx context.Context, actor, resource string, details map[string]any) error {
	ev := a.newEvent(TypeAccessViolation, SeverityMedium, actor, resource, details)
	return a.append(ctx, ev)
}

// Events returns the retained events matching the filter, in insertion
// order.
func (a *Auditor) Events(filter Filter) []Event {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Event
	a.each(func(ev Event) {
		if filter.matches(ev) {
			out = append(out, ev)
		}
	})
	return out
}

// GetMetrics returns derived counters over the retained window. The total
// counts every event ever appended, including rotated-out ones.
func (a *Auditor) GetMetrics() Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := Metrics{
		TotalEvents: a.total,
		BySeverity:  make(map[Severity]int),
		ByType:      make(map[EventType]int),
	}
	hourAgo := a.now().Add(-time.Hour)
	a.each(func(ev Event) {
		m.BySeverity[ev.Severity]++
		m.ByType[ev.Type]++
		if ev.Timestamp.After(hourAgo) {
			m.RecentEvents++
		}
	})
	return m
}

func (a *Auditor) newEvent(typ EventType, sev Severity, actor, target string, details map[string]any) Event {
	copied := make(map[string]any, len(details))
	for k, v := range details {
		copied[k] = v
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  sev,
		Timestamp: a.now().UTC(),
		Actor:     actor,
		Target:    target,
		Details:   copied,
	}
}

// append commits the event under the write lock.
func (a *Auditor) append(ctx context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appendLocked(ctx, ev)
}

// appendLocked commits the event. The archive write happens first so that
// a failed archive leaves no trace in the retained log and fails the
// triggering operation. The monitoring notification is asynchronous and
// must never fail the append. Callers must hold the write lock.
func (a *Auditor) appendLocked(ctx context.Context, ev Event) error {
	if a.archiver != nil {
		if err := a.archiver.Archive(ctx, ev); err != nil {
			return fmt.Errorf("audit archive: %w", err)
		}
	}
	a.push(ev)

	obs.ObserveAuditEvent(string(ev.Type), string(ev.Severity))

	if ev.Severity == SeverityHigh || ev.Severity == SeverityCritical {
		obs.ObserveAlert()
		a.raiseToMonitoring(ev)
	}
	return nil
}

// push appends to the ring, overwriting the oldest event at capacity.
// Callers must hold the write lock.
func (a *Auditor) push(ev Event) {
	tail := (a.head + a.count) % a.capacity
	a.buf[tail] = ev
	if a.count < a.capacity {
		a.count++
	} else {
		a.head = (a.head + 1) % a.capacity
	}
	a.total++
}

// each visits retained events in insertion order. Callers must hold at
// least the read lock.
func (a *Auditor) each(fn func(Event)) {
	for i := 0; i < a.count; i++ {
		fn(a.buf[(a.head+i)%a.capacity])
	}
}

func (a *Auditor) raiseToMonitoring(ev Event) {
	if a.notifier == nil {
		obs.Emit(map[string]any{
			"level":    "warn",
			"msg":      "security event raised to monitoring",
			"event_id": ev.ID,
			"type":     string(ev.Type),
			"severity": string(ev.Severity),
			"actor":    ev.Actor,
		})
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				obs.Emit(map[string]any{
					"level": "error",
					"msg":   "monitoring notifier panicked",
					"panic": fmt.Sprint(r),
				})
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.notifier.Notify(ctx, ev); err != nil {
			obs.Emit(map[string]any{
				"level":    "warn",
				"msg":      "monitoring notification failed",
				"event_id": ev.ID,
				"error":    err.Error(),
			})
		}
	}()
}

// recentAuthFailures counts retained failed auth attempts by actor within
// the trailing window, excluding the event being recorded. Callers must
// hold at least the read lock.
func (a *Auditor) recentAuthFailures(actor string, now time.Time) int {
	cutoff := now.Add(-authFailureWindow)
	n := 0
	a.each(func(ev Event) {
		if ev.Type != TypeAuthAttempt || ev.Actor != actor {
			return
		}
		if success, ok := ev.Details["success"].(bool); ok && success {
			return
		}
		if ev.Timestamp.After(cutoff) {
			n++
		}
	})
	return n
}

func escalate(ev *Event, reason string) {
	ev.Severity = SeverityHigh
	if ev.Metadata == nil {
		ev.Metadata = make(map[string]string, 1)
	}
	ev.Metadata["escalation"] = reason
}

// suspiciousCall applies typed predicates over the structured payload:
// large numeric amounts, duplicated account entries and repeated
// timestamps.
func suspiciousCall(accounts []string, details map[string]any) (string, bool) {
	if amt, ok := numericDetail(details["amount"]); ok && amt >= largeAmountFloor {
		return "large_amount", true
	}
	seen := make(map[string]struct{}, len(accounts))
	for _, acc := range accounts {
		if _, dup := seen[acc]; dup {
			return "duplicate_accounts", true
		}
		seen[acc] = struct{}{}
	}
	if stamps, ok := details["timestamps"].([]time.Time); ok {
		unique := make(map[int64]struct{}, len(stamps))
		for _, ts := range stamps {
			key := ts.UnixNano()
			if _, dup := unique[key]; dup {
				return "repeated_timestamps", true
			}
			unique[key] = struct{}{}
		}
	}
	return "", false
}

func numericDetail(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
