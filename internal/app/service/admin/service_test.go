package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/pkg/types"
)

func TestScan_RejectsUnknownSortColumn(t *testing.T) {
	s := New(nil, zap.NewNop().Sugar())

	_, err := s.ScanPayments(context.Background(), &ScanRequest{SortBy: "amount; DROP TABLE payments"})
	require.ErrorIs(t, err, ErrInvalidSort)

	_, err = s.ScanWebhooks(context.Background(), &ScanRequest{SortBy: "amount"})
	require.ErrorIs(t, err, ErrInvalidSort)

	_, err = s.ScanPayments(context.Background(), nil)
	require.Error(t, err)
}

func TestScan_RejectsInvalidFilter(t *testing.T) {
	s := New(nil, zap.NewNop().Sugar())

	_, err := s.ScanPayments(context.Background(), &ScanRequest{Filters: []*types.CommonFilter{
		{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"approved"}},
		{Field: "amount", Operator: types.CommonFilterOperatorRange, Values: []any{100}},
	}})
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = s.ScanWebhooks(context.Background(), &ScanRequest{Filters: []*types.CommonFilter{
		{Field: "status", Operator: "like", Values: []any{"a%"}},
	}})
	require.ErrorIs(t, err, ErrInvalidFilter)
}
