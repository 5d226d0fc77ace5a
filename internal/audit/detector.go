package audit

import (
	"fmt"
	"sort"
	"time"
)

// FindingType names a detection rule.
type FindingType string

const (
	FindingMultipleFailedLogins FindingType = "multiple_failed_logins"
	FindingMultipleIPsPerUser   FindingType = "multiple_ips_per_user"
	FindingOffHoursActivity     FindingType = "off_hours_activity"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Finding is one anomaly produced by a detection rule.
type Finding struct {
	Type        FindingType    `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// Thresholds configures every detection rule.
type Thresholds struct {
	FailedLoginWindow    time.Duration
	FailedLoginThreshold int
	MultiIPWindow        time.Duration
	MultiIPThreshold     int
	OffHoursWindow       time.Duration
	// Activity at an hour strictly before OffHoursStart or strictly after
	// OffHoursEnd is flagged.
	OffHoursStart int
	OffHoursEnd   int
	MaxSamples    int
	Location      *time.Location
}

// DefaultThresholds returns the stock rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLoginWindow:    time.Hour,
		FailedLoginThreshold: 5,
		MultiIPWindow:        24 * time.Hour,
		MultiIPThreshold:     3,
		OffHoursWindow:       24 * time.Hour,
		OffHoursStart:        6,
		OffHoursEnd:          22,
		MaxSamples:           10,
		Location:             time.UTC,
	}
}

// Rule evaluates one anomaly pattern against a log snapshot.
type Rule func(entries []Entry, now time.Time, t Thresholds) []Finding

// Detector runs a fixed rule set over log snapshots. It holds no state
// besides its configuration.
type Detector struct {
	thresholds Thresholds
	rules      []Rule
}

// NewDetector builds a detector with the three stock rules.
func NewDetector(t Thresholds) *Detector {
	if t.Location == nil {
		t.Location = time.UTC
	}
	return &Detector{
		thresholds: t,
		rules:      []Rule{FailedLoginRule, MultipleIPRule, OffHoursRule},
	}
}

// Thresholds returns the configuration in use.
func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// Detect validates entries and evaluates every rule as of now. Findings are
// ordered by type then description.
func (d *Detector) Detect(entries []Entry, now time.Time) ([]Finding, error) {
	for i, e := range entries {
		if e.CreatedAt.IsZero() || e.Action == "" {
			return nil, fmt.Errorf("%w: entry %d (id %q)", ErrMalformedEntry, i, e.ID)
		}
	}
	findings := make([]Finding, 0)
	for _, rule := range d.rules {
		findings = append(findings, rule(entries, now, d.thresholds)...)
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Type != findings[j].Type {
			return findings[i].Type < findings[j].Type
		}
		return findings[i].Description < findings[j].Description
	})
	return findings, nil
}

func within(e Entry, now time.Time, window time.Duration) bool {
	return !e.CreatedAt.Before(now.Add(-window))
}

// FailedLoginRule flags every IP with at least FailedLoginThreshold failed
// logins inside FailedLoginWindow.
func FailedLoginRule(entries []Entry, now time.Time, t Thresholds) []Finding {
	attempts := make(map[string][]time.Time)
	for _, e := range entries {
		if e.Action != ActionLoginFailed || !within(e, now, t.FailedLoginWindow) {
			continue
		}
		attempts[e.IPAddress] = append(attempts[e.IPAddress], e.CreatedAt)
	}
	var out []Finding
	for ip, times := range attempts {
		if len(times) < t.FailedLoginThreshold {
			continue
		}
		out = append(out, Finding{
			Type:        FindingMultipleFailedLogins,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d failed login attempts from IP %s", len(times), ip),
			Data: map[string]any{
				"ip_address": ip,
				"count":      len(times),
				"attempts":   times,
			},
		})
	}
	return out
}

// MultipleIPRule flags every user who logged in from at least
// MultiIPThreshold distinct addresses inside MultiIPWindow. Unresolved
// addresses are ignored.
func MultipleIPRule(entries []Entry, now time.Time, t Thresholds) []Finding {
	ips := make(map[string]map[string]struct{})
	for _, e := range entries {
		if e.Action != ActionLogin || !within(e, now, t.MultiIPWindow) {
			continue
		}
		if e.IPAddress == "" || e.IPAddress == unknownValue {
			continue
		}
		set, ok := ips[e.UserID]
		if !ok {
			set = make(map[string]struct{})
			ips[e.UserID] = set
		}
		set[e.IPAddress] = struct{}{}
	}
	var out []Finding
	for user, set := range ips {
		if len(set) < t.MultiIPThreshold {
			continue
		}
		list := make([]string, 0, len(set))
		for ip := range set {
			list = append(list, ip)
		}
		sort.Strings(list)
		out = append(out, Finding{
			Type:        FindingMultipleIPsPerUser,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("User %s logged in from %d different IPs", user, len(list)),
			Data: map[string]any{
				"user_id":      user,
				"ip_addresses": list,
				"count":        len(list),
			},
		})
	}
	return out
}

// OffHoursRule yields a single summary finding when any non-session activity
// inside OffHoursWindow happened outside business hours.
func OffHoursRule(entries []Entry, now time.Time, t Thresholds) []Finding {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	var (
		count   int
		samples []Entry
	)
	for _, e := range entries {
		if e.Action == ActionLogin || e.Action == ActionLogout || !within(e, now, t.OffHoursWindow) {
			continue
		}
		hour := e.CreatedAt.In(loc).Hour()
		if hour >= t.OffHoursStart && hour <= t.OffHoursEnd {
			continue
		}
		count++
		if len(samples) < t.MaxSamples {
			samples = append(samples, e)
		}
	}
	if count == 0 {
		return nil
	}
	return []Finding{{
		Type:        FindingOffHoursActivity,
		Severity:    SeverityLow,
		Description: fmt.Sprintf("%d activities detected outside business hours", count),
		Data: map[string]any{
			"count":   count,
			"samples": samples,
		},
	}}
}
