package services

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockaudit/stockaudit-backend/internal/db/models"
)

// Multi-step workflow tests. The tests in audit_engine_test.go pin down each
// operation in isolation; these walk two operations back to back against the
// same engine to catch sequencing bugs between them.

func TestWorkflow_ConfirmThenManagerOverride(t *testing.T) {
	engine, mock := newEngine(t)

	// Counter confirms a pending row with a count that disagrees with the system.
	mock.ExpectQuery("SELECT v.id.*FROM verifications v.*WHERE v.id").
		WillReturnRows(verificationRow(models.VerificationStatusPending, 10, nil, nil))
	mock.ExpectQuery("SELECT s.id.*FROM audit_sessions s.*WHERE s.id").
		WillReturnRows(sessionRow(models.SessionStatusInProgress))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE verifications.*SET physical_quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO action_log_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT v.id.*FROM verifications v.*WHERE v.id").
		WillReturnRows(verificationRow(models.VerificationStatusConfirmed, 10, int64p(8), &testCounterID))

	confirmed, err := engine.Confirm(context.Background(), counterActor(), testVerificationID, 8, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.Equal(t, models.VerificationStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PhysicalQuantity)
	assert.EqualValues(t, 8, *confirmed.PhysicalQuantity)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, testCounterID, *confirmed.ConfirmedBy)

	// The manager recounts and overrides the counter's figure.
	mock.ExpectQuery("SELECT v.id.*FROM verifications v.*WHERE v.id").
		WillReturnRows(verificationRow(models.VerificationStatusConfirmed, 10, int64p(8), &testCounterID))
	mock.ExpectQuery("SELECT s.id.*FROM audit_sessions s.*WHERE s.id").
		WillReturnRows(sessionRow(models.SessionStatusInProgress))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE verifications.*override_by").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO action_log_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	overriddenRow := sqlmock.NewRows(verificationCols).
		AddRow(testVerificationID.String(), testSessionID.String(), 1, testItemID.String(), nil,
			10, int64p(10), models.VerificationStatusConfirmed, nil,
			testCounterID.String(), time.Now(), nil,
			testManagerID.String(), time.Now(), "recount during spot check",
			time.Now(), time.Now(),
			"SKU-001", "Widget")
	mock.ExpectQuery("SELECT v.id.*FROM verifications v.*WHERE v.id").
		WillReturnRows(overriddenRow)

	overridden, err := engine.Override(context.Background(), managerActor(), testVerificationID, 10, nil, "recount during spot check")
	require.NoError(t, err)
	require.NotNil(t, overridden)
	require.NotNil(t, overridden.PhysicalQuantity)
	assert.EqualValues(t, 10, *overridden.PhysicalQuantity)
	require.NotNil(t, overridden.OverrideBy)
	assert.Equal(t, testManagerID, *overridden.OverrideBy)
	// The original confirmation survives the override.
	require.NotNil(t, overridden.ConfirmedBy)
	assert.Equal(t, testCounterID, *overridden.ConfirmedBy)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflow_LockBlocksConfirm(t *testing.T) {
	engine, mock := newEngine(t)

	// Manager locks the row.
	mock.ExpectQuery("SELECT v.id.*FROM verifications v.*WHERE v.id").
		WillReturnRows(verificationRow(models.VerificationStatusConfirmed, 10, int64p(10), &testCounterID))
	mock.ExpectQuery("SELECT s.id.*FROM audit_sessions s.*WHERE s.id").
		WillReturnRows(sessionRow(models.SessionStatusInProgress))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE verifications SET locked_by").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO action_log_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, engine.Lock(context.Background(), managerActor(), testVerificationID))

	// A counter attempting to re-confirm the now-locked row is rejected before
	// any write happens.
	lockedRow := sqlmock.NewRows(verificationCols).
		AddRow(testVerificationID.String(), testSessionID.String(), 1, testItemID.String(), nil,
			10, int64p(10), models.VerificationStatusConfirmed, nil,
			testCounterID.String(), time.Now(), testManagerID.String(),
			nil, nil, nil,
			time.Now(), time.Now(),
			"SKU-001", "Widget")
	mock.ExpectQuery("SELECT v.id.*FROM verifications v.*WHERE v.id").
		WillReturnRows(lockedRow)
	mock.ExpectQuery("SELECT s.id.*FROM audit_sessions s.*WHERE s.id").
		WillReturnRows(sessionRow(models.SessionStatusInProgress))

	_, err := engine.Confirm(context.Background(), counterActor(), testVerificationID, 12, nil, nil)
	var authz *AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.Contains(t, authz.Error(), "locked")

	assert.NoError(t, mock.ExpectationsWereMet())
}
