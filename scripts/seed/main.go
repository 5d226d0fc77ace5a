package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tripwell/tripwell/internal/app"
	"github.com/tripwell/tripwell/internal/audit"
)

// seed writes demo activity into the configured audit store, including one
// pattern for each suspicious activity rule.
func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.AuditStore == app.StoreMemory {
		log.Fatalf("seed requires AUDIT_STORE=redis or postgres")
	}
	core, err := app.NewCore(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("init core: %v", err)
	}
	defer core.Close()

	now := time.Now().In(cfg.Location()).Truncate(time.Minute)
	at := now
	recorder := audit.NewRecorder(audit.RecorderConfig{
		Store:  core.Store,
		Logger: core.Logger,
		Clock:  func() time.Time { return at },
	})
	record := func(when time.Time, user string, action audit.Action, resource, ip string) {
		at = when
		if recorder.LogActivity(ctx, user, action, resource, nil, &audit.RequestMeta{IP: ip, UserAgent: "tripwell-seed"}) == nil {
			log.Fatalf("record %s for %s", action, user)
		}
	}

	fmt.Println("→ Seeding routine activity...")
	record(now.Add(-50*time.Minute), "agent-1", audit.ActionLogin, "auth", "10.0.0.5")
	record(now.Add(-45*time.Minute), "agent-1", audit.ActionBookingCreate, "bookings", "10.0.0.5")
	record(now.Add(-40*time.Minute), "manager-1", audit.ActionBookingCancel, "bookings", "10.0.0.9")

	fmt.Println("→ Seeding failed login burst...")
	for i := 0; i < cfg.DetectFailedLoginLimit+1; i++ {
		record(now.Add(-time.Duration(10-i)*time.Minute), "unknown-user", audit.ActionLoginFailed, "auth", "203.0.113.7")
	}

	fmt.Println("→ Seeding multi-IP session...")
	for i := 0; i <= cfg.DetectMultiIPLimit; i++ {
		record(now.Add(-time.Duration(30-i)*time.Minute), "agent-2", audit.ActionLogin, "auth", fmt.Sprintf("198.51.100.%d", i+1))
	}

	fmt.Println("→ Seeding off-hours export...")
	offHours := time.Date(now.Year(), now.Month(), now.Day(), (cfg.DetectOffHoursEnd+1)%24, 30, 0, 0, now.Location())
	if offHours.After(now) {
		offHours = offHours.Add(-24 * time.Hour)
	}
	record(offHours, "admin-1", audit.ActionReportExport, "reports", "10.0.0.2")

	findings, err := core.Recorder.DetectSuspiciousActivity(ctx)
	if err != nil {
		log.Fatalf("detect: %v", err)
	}
	fmt.Printf("✓ Seed complete, %d finding(s) active\n", len(findings))
}
