package tasks_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/oauthstate"
	"github.com/dalemusser/cohorthub/internal/app/system/metrics"
	"github.com/dalemusser/cohorthub/internal/app/system/tasks"
	"github.com/dalemusser/cohorthub/internal/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestRunner_RunsImmediatelyThenOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := tasks.NewRunner(zap.NewNop(), clock)

	var runs atomic.Int32
	r.Start(tasks.Job{
		Name:     "counter",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("failures are logged, not fatal")
		},
	})
	defer r.Stop()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRunner_StopWithoutStart(t *testing.T) {
	tasks.NewRunner(zap.NewNop(), nil).Stop()
}

func TestOAuthStateCleanupJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := oauthstate.New(db)
	require.NoError(t, store.Save(ctx, oauthstate.State{State: "old", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-11 * time.Minute)}))
	require.NoError(t, store.Save(ctx, oauthstate.State{State: "live", ExpiresAt: now.Add(time.Minute), CreatedAt: now}))

	job := tasks.OAuthStateCleanupJob(store, clockwork.NewFakeClockAt(now), zap.NewNop())
	require.NoError(t, job.Run(ctx))

	fx := testutil.NewFixtures(t, db)
	assert.EqualValues(t, 1, fx.Count(ctx, "oauth_states", bson.M{}))
	assert.EqualValues(t, 1, fx.Count(ctx, "oauth_states", bson.M{"_id": "live"}))
}

func TestEntityGaugeJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	cohort := fx.CreateCohort(ctx, "Spring Cohort 2026")
	creator := fx.CreateStudent(ctx, "creator@example.com")
	fx.CreateGroup(ctx, cohort.ID, "Night Owls", creator.ID, 4)

	m := metrics.New(prometheus.NewRegistry())
	require.NoError(t, tasks.EntityGaugeJob(db, m, time.Minute).Run(ctx))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Entities.WithLabelValues("cohorts")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Entities.WithLabelValues("groups")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Entities.WithLabelValues("grouped_users")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.Entities.WithLabelValues("pending_applications")))
}
