package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bloodbank/internal/model"
	"bloodbank/internal/testutil"
	"bloodbank/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*InventoryEvent
}

func (p *recordingPublisher) Publish(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := v.(*InventoryEvent); ok {
		p.events = append(p.events, ev)
	}
}

func (p *recordingPublisher) Events() []*InventoryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*InventoryEvent(nil), p.events...)
}

type fixture struct {
	db        *gorm.DB
	svc       *Services
	publisher *recordingPublisher
	registry  *prometheus.Registry
	admin     Actor
	donor     Actor
}

func newFixture(t *testing.T, cooldown time.Duration) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewDB(t), cooldown)
}

func newFixtureOn(t *testing.T, db *gorm.DB, cooldown time.Duration) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	pub := &recordingPublisher{}
	svc := New(db, Options{
		Thresholds:       Thresholds{Default: 5},
		DonationCooldown: cooldown,
		Publisher:        pub,
		Metrics:          metrics.NewWorkflowMetrics(reg),
	})
	admin := testutil.CreateUser(t, db, model.RoleAdmin)
	donor := testutil.CreateUser(t, db, model.RoleDonor)

	return &fixture{
		db:        db,
		svc:       svc,
		publisher: pub,
		registry:  reg,
		admin:     Actor{ID: admin.ID, Role: model.RoleAdmin},
		donor:     Actor{ID: donor.ID, Role: model.RoleDonor},
	}
}

func (f *fixture) newDonor(t *testing.T) Actor {
	t.Helper()
	u := testutil.CreateUser(t, f.db, model.RoleDonor)
	return Actor{ID: u.ID, Role: model.RoleDonor}
}

// seed puts stock in through the ledger so the books stay balanced.
func (f *fixture) seed(t *testing.T, group string, qty int) {
	t.Helper()
	_, err := f.svc.Inventory.AdjustInventory(context.Background(), f.admin, AdjustInventoryRequest{
		BloodGroup: group, Delta: qty, Notes: "opening balance",
	})
	require.NoError(t, err)
}

func (f *fixture) quantity(t *testing.T, group string) int {
	t.Helper()
	var row model.Inventory
	require.NoError(t, f.db.First(&row, "blood_group = ?", group).Error)
	return row.Quantity
}

func (f *fixture) ledgerCount(t *testing.T, group string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.InventoryTransaction{}).Where("blood_group = ?", group).Count(&n).Error)
	return n
}

// assertBalanced checks that every group's quantity equals its ledger sum.
func (f *fixture) assertBalanced(t *testing.T) {
	t.Helper()
	report, err := f.svc.Inventory.ReconcileLedger(context.Background(), f.admin)
	require.NoError(t, err)
	require.True(t, report.Consistent, "drift: %+v", report.Groups)
}
