package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docvault/internal/model"
)

type MockScanRepository struct {
	mock.Mock
}

func (m *MockScanRepository) CreateResult(ctx context.Context, res *model.ScanResult) (*model.ScanResult, error) {
	args := m.Called(ctx, res)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanResult), args.Error(1)
}

func (m *MockScanRepository) GetLatestByDocument(ctx context.Context, documentID string) (*model.ScanResult, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanResult), args.Error(1)
}
