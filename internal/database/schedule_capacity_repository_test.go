package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var capacityRowColumns = []string{
	"schedule_id", "route_name", "travel_date", "total_seats", "available_seats", "created_at", "updated_at",
}

func TestGetCapacity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleCapacityRepository(db)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM schedule_capacity WHERE schedule_id = \$1`).
			WithArgs("SCH-1").
			WillReturnRows(sqlmock.NewRows(capacityRowColumns).
				AddRow("SCH-1", "Colombo - Kandy", now, 40, 37, now, now))

		capacity, err := repo.GetCapacity(context.Background(), "SCH-1")
		require.NoError(t, err)
		assert.Equal(t, 40, capacity.TotalSeats)
		assert.Equal(t, 37, capacity.AvailableSeats)
		assert.Equal(t, 3, capacity.BookedSeats())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM schedule_capacity`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(capacityRowColumns))

		capacity, err := repo.GetCapacity(context.Background(), "missing")
		assert.Nil(t, capacity)
		assert.True(t, models.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLockCapacity(t *testing.T) {
	t.Run("Requires transaction", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)

		_, err := repo.LockCapacity(context.Background(), "SCH-1")
		assert.ErrorIs(t, err, ErrNoTransaction)
	})

	t.Run("Selects for update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)
		now := time.Now()

		mock.ExpectQuery(`FROM schedule_capacity WHERE schedule_id = \$1 FOR UPDATE`).
			WithArgs("SCH-1").
			WillReturnRows(sqlmock.NewRows(capacityRowColumns).
				AddRow("SCH-1", "", now, 10, 10, now, now))

		capacity, err := repo.LockCapacity(ctx, "SCH-1")
		require.NoError(t, err)
		assert.Equal(t, 10, capacity.AvailableSeats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDecrementAvailable(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`UPDATE schedule_capacity`).
			WithArgs("SCH-1", 2).
			WillReturnRows(sqlmock.NewRows([]string{"available_seats"}).AddRow(8))

		remaining, err := repo.DecrementAvailable(ctx, "SCH-1", 2)
		require.NoError(t, err)
		assert.Equal(t, 8, remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insufficient capacity", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`UPDATE schedule_capacity`).
			WithArgs("SCH-1", 3).
			WillReturnRows(sqlmock.NewRows([]string{"available_seats"}))
		mock.ExpectQuery(`SELECT total_seats, available_seats FROM schedule_capacity`).
			WithArgs("SCH-1").
			WillReturnRows(sqlmock.NewRows([]string{"total_seats", "available_seats"}).AddRow(10, 1))

		_, err := repo.DecrementAvailable(ctx, "SCH-1", 3)
		require.Error(t, err)

		var insufficient *models.InsufficientCapacityError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 3, insufficient.Requested)
		assert.Equal(t, 1, insufficient.Available)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown schedule", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`UPDATE schedule_capacity`).
			WillReturnRows(sqlmock.NewRows([]string{"available_seats"}))
		mock.ExpectQuery(`SELECT total_seats, available_seats FROM schedule_capacity`).
			WillReturnRows(sqlmock.NewRows([]string{"total_seats", "available_seats"}))

		_, err := repo.DecrementAvailable(ctx, "missing", 1)
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("Rejects non-positive amount", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		_, err := repo.DecrementAvailable(ctx, "SCH-1", 0)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Requires transaction", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)

		_, err := repo.DecrementAvailable(context.Background(), "SCH-1", 1)
		assert.ErrorIs(t, err, ErrNoTransaction)
	})

	t.Run("Serialization failure is passed through", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`UPDATE schedule_capacity`).WillReturnError(&pq.Error{Code: "40001"})

		_, err := repo.DecrementAvailable(ctx, "SCH-1", 1)
		assert.True(t, IsRetryable(err))
	})
}

func TestIncrementAvailable(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`UPDATE schedule_capacity`).
			WithArgs("SCH-1", 2).
			WillReturnRows(sqlmock.NewRows([]string{"available_seats"}).AddRow(10))

		available, err := repo.IncrementAvailable(ctx, "SCH-1", 2)
		require.NoError(t, err)
		assert.Equal(t, 10, available)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Overflow", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`UPDATE schedule_capacity`).
			WithArgs("SCH-1", 2).
			WillReturnRows(sqlmock.NewRows([]string{"available_seats"}))
		mock.ExpectQuery(`SELECT total_seats, available_seats FROM schedule_capacity`).
			WillReturnRows(sqlmock.NewRows([]string{"total_seats", "available_seats"}).AddRow(10, 9))

		_, err := repo.IncrementAvailable(ctx, "SCH-1", 2)
		require.Error(t, err)

		var overflow *models.CapacityOverflowError
		require.True(t, errors.As(err, &overflow))
		assert.Equal(t, 9, overflow.Available)
		assert.Equal(t, 10, overflow.Total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateSchedule(t *testing.T) {
	travelDate := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)
		now := time.Now()

		mock.ExpectQuery(`INSERT INTO schedule_capacity`).
			WithArgs("SCH-1", "Colombo - Galle", travelDate, 40, 40).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		capacity := &models.ScheduleCapacity{
			ScheduleID: "SCH-1", RouteName: "Colombo - Galle", TravelDate: travelDate,
			TotalSeats: 40, AvailableSeats: 40,
		}
		require.NoError(t, repo.CreateSchedule(ctx, capacity))
		assert.Equal(t, now, capacity.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectQuery(`INSERT INTO schedule_capacity`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "schedule_capacity_pkey"})

		err := repo.CreateSchedule(ctx, &models.ScheduleCapacity{ScheduleID: "SCH-1", TravelDate: travelDate, TotalSeats: 1, AvailableSeats: 1})
		var exists *models.ScheduleExistsError
		assert.True(t, errors.As(err, &exists))
	})
}

func TestDeleteSchedule(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectExec(`DELETE FROM schedule_capacity`).
			WithArgs("SCH-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.DeleteSchedule(ctx, "SCH-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleCapacityRepository(db)
		ctx := txContext(t, db, mock)

		mock.ExpectExec(`DELETE FROM schedule_capacity`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.True(t, models.IsNotFound(repo.DeleteSchedule(ctx, "missing")))
	})
}

func TestAuditCounts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleCapacityRepository(db)

	mock.ExpectQuery(`FROM schedule_capacity c`).
		WillReturnRows(sqlmock.NewRows([]string{
			"schedule_id", "total_seats", "available_seats", "booked_ledger_rows", "duplicate_seats",
		}).
			AddRow("SCH-1", 40, 38, 2, 0).
			AddRow("SCH-2", 40, 40, 1, 0))

	results, err := repo.AuditCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Consistent())
	assert.False(t, results[1].Consistent())
	assert.NoError(t, mock.ExpectationsWereMet())
}
