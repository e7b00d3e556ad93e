package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docvault/internal/model"
)

type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) Enqueue(ctx context.Context, documentID, userID, tenantID string) (string, error) {
	args := m.Called(ctx, documentID, userID, tenantID)
	return args.String(0), args.Error(1)
}

func (m *MockScanService) Process(ctx context.Context, scanID string) error {
	args := m.Called(ctx, scanID)
	return args.Error(0)
}

func (m *MockScanService) GetJob(ctx context.Context, scanID string) (*model.ScanJobRecord, error) {
	args := m.Called(ctx, scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanJobRecord), args.Error(1)
}
