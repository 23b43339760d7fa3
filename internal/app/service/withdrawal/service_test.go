package withdrawal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fatflowers/tipy/pkg/config"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return gdb, mock
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	gdb, mock := newMockDB(t)
	cfg := &config.Config{Withdrawal: config.WithdrawalConfig{FeePercent: 0.3, MinAmount: 1000}}
	svc := NewService(gdb, cfg, zap.NewNop().Sugar())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, mock
}

func djRow(balance string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "display_name", "balance", "ganancias_totales"}).
		AddRow("dj-1", "DJ One", balance, "5000")
}

func TestRequestWithdrawal_LocksInsertsAndDebits(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "djs" WHERE id = \$1 .*FOR UPDATE`).WillReturnRows(djRow("2000"))
	mock.ExpectExec(`INSERT INTO "withdrawals"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "bank_details"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "djs" SET "balance"=GREATEST\(0, balance - \$1\)`).
		WithArgs("2000", sqlmock.AnyArg(), "dj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w, err := svc.RequestWithdrawal(context.Background(), "dj-1", &RequestWithdrawalRequest{BankName: " BROU ", AccountNumber: "001-2"})
	require.NoError(t, err)
	require.Equal(t, "1400", w.Amount.String())
	require.Equal(t, "2000", w.GrossAmount.String())
	require.Equal(t, "BROU", w.BankDetails.BankName)
	require.Equal(t, w.ID, w.BankDetails.WithdrawalID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestWithdrawal_BelowMinimumWritesNothing(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "djs" WHERE id = \$1 .*FOR UPDATE`).WillReturnRows(djRow("999.99"))
	mock.ExpectRollback()

	_, err := svc.RequestWithdrawal(context.Background(), "dj-1", &RequestWithdrawalRequest{BankName: "BROU", AccountNumber: "001"})
	require.ErrorIs(t, err, ErrBelowMinimum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestWithdrawal_UnknownDJ(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "djs"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.RequestWithdrawal(context.Background(), "dj-1", &RequestWithdrawalRequest{BankName: "BROU", AccountNumber: "001"})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreview_ReportsPendingWithoutSubtractingIt(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT \* FROM "djs"`).WillReturnRows(djRow("2000"))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) AS total FROM "withdrawals"`).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow("1400"))

	q, err := svc.Preview(context.Background(), "dj-1")
	require.NoError(t, err)
	require.True(t, q.CanWithdraw)
	require.Equal(t, "2000", q.Available.String())
	require.Equal(t, "1400", q.Pending.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessWithdrawal_AlreadyProcessed(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(`UPDATE "withdrawals" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "withdrawals" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dj_id", "amount", "gross_amount", "status"}).
			AddRow("w-1", "dj-1", "1400", "2000", "processed"))
	mock.ExpectQuery(`SELECT \* FROM "bank_details"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "withdrawal_id", "dj_id", "bank_name", "account_number"}).
			AddRow("b-1", "w-1", "dj-1", "BROU", "001"))

	w, err := svc.ProcessWithdrawal(context.Background(), "w-1")
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	require.NotNil(t, w)
	require.Equal(t, "BROU", w.BankDetails.BankName)
	require.NoError(t, mock.ExpectationsWereMet())
}
