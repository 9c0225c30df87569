package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/models"
)

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, snapshot *models.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetRange(ctx context.Context, userID int64, start, end time.Time, interval string) (models.SnapshotSeries, error) {
	args := m.Called(ctx, userID, start, end, interval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.SnapshotSeries), args.Error(1)
}

func (m *MockSnapshotRepository) GetLatest(ctx context.Context, userID int64) (*models.Snapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) ActiveUsers(ctx context.Context, since time.Time) ([]int64, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockSnapshotRepository) Count(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type fakeAlertsProvider struct {
	responses map[int64]*models.AlertsResponse
	errs      map[int64]error
}

func (f *fakeAlertsProvider) GetAlerts(ctx context.Context, userID int64, overrides models.AlertThresholdConfig) (*models.AlertsResponse, error) {
	if err, ok := f.errs[userID]; ok {
		return nil, err
	}
	if resp, ok := f.responses[userID]; ok {
		return resp, nil
	}
	return &models.AlertsResponse{UserID: userID}, nil
}

type recordingSink struct {
	published []models.TriggeredAlert
	users     []int64
}

func (r *recordingSink) Publish(userID int64, alert models.TriggeredAlert) error {
	r.users = append(r.users, userID)
	r.published = append(r.published, alert)
	return nil
}

func newTestSweeper(repo *MockSnapshotRepository, provider *fakeAlertsProvider, sink *recordingSink) *AlertSweeper {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewAlertSweeper(repo, provider, sink, config.SchedulerConfig{
		SweepInterval:     "*/15 * * * *",
		SweepLookbackDays: 7,
		TimeZone:          "UTC",
	}, logger)
}

func triggered(severity string, threshold, value int64) models.TriggeredAlert {
	t := decimal.NewFromInt(threshold)
	v := decimal.NewFromInt(value)
	return models.TriggeredAlert{
		Severity:  severity,
		Threshold: t,
		Value:     v,
		Margin:    v.Sub(t),
	}
}

func TestAlertSweeper_Sweep(t *testing.T) {
	t.Run("publishes only the highest severity per alerting user", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		repo.On("ActiveUsers", mock.Anything, mock.Anything).Return([]int64{1, 2, 3}, nil)

		provider := &fakeAlertsProvider{
			responses: map[int64]*models.AlertsResponse{
				1: {UserID: 1, Alerts: []models.TriggeredAlert{
					triggered("emergency", 25, 30),
					triggered("critical", 20, 30),
					triggered("warning", 15, 30),
				}},
				2: {UserID: 2}, // no drawdown
				3: {UserID: 3, Alerts: []models.TriggeredAlert{
					triggered("warning", 15, 16),
				}},
			},
		}
		sink := &recordingSink{}

		newTestSweeper(repo, provider, sink).Sweep()

		assert.Equal(t, []int64{1, 3}, sink.users)
		assert.Equal(t, "emergency", sink.published[0].Severity)
		assert.Equal(t, "warning", sink.published[1].Severity)
	})

	t.Run("one failing user does not stop the sweep", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		repo.On("ActiveUsers", mock.Anything, mock.Anything).Return([]int64{1, 2}, nil)

		provider := &fakeAlertsProvider{
			errs: map[int64]error{1: errors.New("store down")},
			responses: map[int64]*models.AlertsResponse{
				2: {UserID: 2, Alerts: []models.TriggeredAlert{triggered("critical", 20, 22)}},
			},
		}
		sink := &recordingSink{}

		newTestSweeper(repo, provider, sink).Sweep()

		assert.Equal(t, []int64{2}, sink.users)
	})

	t.Run("listing failure aborts quietly", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		repo.On("ActiveUsers", mock.Anything, mock.Anything).Return(nil, errors.New("mongo down"))

		sink := &recordingSink{}
		newTestSweeper(repo, &fakeAlertsProvider{}, sink).Sweep()

		assert.Empty(t, sink.users)
	})
}
