package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fatflowers/tipy/internal/models"
)

const (
	lockPaymentSQL = `SELECT \* FROM "payments" WHERE external_reference = \$1 .*FOR UPDATE`
	updatePaySQL   = `UPDATE "payments" SET `
	creditDJSQL    = `UPDATE "djs" SET "balance"=GREATEST\(0, balance \+ \$1\),"ganancias_totales"=GREATEST\(0, ganancias_totales \+ \$2\),"updated_at"=\$3 WHERE id = \$4`
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return NewStore(gdb, zap.NewNop().Sugar()), mock
}

func paymentRow(status models.PaymentStatus, gatewayID any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "dj_id", "amount", "external_reference", "mercadopago_payment_id", "status"}).
		AddRow("pay-1", "dj-1", "500", "ref-1", gatewayID, string(status))
}

func TestApplyPaymentStatus_ApprovalCreditsBothAccumulators(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPaymentSQL).WillReturnRows(paymentRow(models.PaymentStatusPending, nil))
	mock.ExpectExec(updatePaySQL).
		WithArgs("9001", "approved", sqlmock.AnyArg(), "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(creditDJSQL).
		WithArgs("500", "500", sqlmock.AnyArg(), "dj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := store.ApplyPaymentStatus(context.Background(), "ref-1", models.PaymentStatusApproved, "9001")
	require.NoError(t, err)
	require.True(t, tr.Changed())
	require.Equal(t, "500", tr.BalanceDelta().String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentStatus_ReapplyingSameStatusWritesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPaymentSQL).WillReturnRows(paymentRow(models.PaymentStatusApproved, "9001"))
	mock.ExpectCommit()

	tr, err := store.ApplyPaymentStatus(context.Background(), "ref-1", models.PaymentStatusApproved, "9001")
	require.NoError(t, err)
	require.False(t, tr.Changed())
	require.True(t, tr.BalanceDelta().IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentStatus_LeavingApprovedDebitsWithFloor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPaymentSQL).WillReturnRows(paymentRow(models.PaymentStatusApproved, "9001"))
	mock.ExpectExec(updatePaySQL).
		WithArgs("refunded", sqlmock.AnyArg(), "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(creditDJSQL).
		WithArgs("-500", "-500", sqlmock.AnyArg(), "dj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := store.ApplyPaymentStatus(context.Background(), "ref-1", models.PaymentStatusRefunded, "9001")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusApproved, tr.From)
	require.Equal(t, "-500", tr.BalanceDelta().String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentStatus_OtherGatewayPaymentIgnoredOnceApproved(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPaymentSQL).WillReturnRows(paymentRow(models.PaymentStatusApproved, "9001"))
	mock.ExpectCommit()

	tr, err := store.ApplyPaymentStatus(context.Background(), "ref-1", models.PaymentStatusRejected, "9000")
	require.NoError(t, err)
	require.True(t, tr.Superseded)
	require.False(t, tr.Changed())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentStatus_MissingDJRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPaymentSQL).WillReturnRows(paymentRow(models.PaymentStatusPending, nil))
	mock.ExpectExec(updatePaySQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(creditDJSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.ApplyPaymentStatus(context.Background(), "ref-1", models.PaymentStatusApproved, "9001")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentStatus_MissingPayment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPaymentSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.ApplyPaymentStatus(context.Background(), "ref-1", models.PaymentStatusApproved, "9001")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
