package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"docvault/internal/auth"
	"docvault/internal/model"
	"docvault/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, p auth.Principal, r io.Reader, meta service.UploadMeta, size int64) (*service.UploadResult, error) {
	args := m.Called(ctx, p, r, meta, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, p auth.Principal, id string) (*service.DocumentDetail, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentDetail), args.Error(1)
}

func (m *MockDocumentService) Download(ctx context.Context, p auth.Principal, id string) (string, error) {
	args := m.Called(ctx, p, id)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, p auth.Principal, q service.ListQuery) (*service.DocumentListResult, error) {
	args := m.Called(ctx, p, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Update(ctx context.Context, p auth.Principal, id string, upd service.DocumentUpdate) (*model.Document, error) {
	args := m.Called(ctx, p, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, p auth.Principal, id string) error {
	args := m.Called(ctx, p, id)
	return args.Error(0)
}

func (m *MockDocumentService) AuditTrail(ctx context.Context, p auth.Principal, id string, limit, offset int) ([]model.AuditLog, error) {
	args := m.Called(ctx, p, id, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditLog), args.Error(1)
}

func (m *MockDocumentService) VerifyAccess(ctx context.Context, p auth.Principal, id string) error {
	args := m.Called(ctx, p, id)
	return args.Error(0)
}

func (m *MockDocumentService) CreateSession(ctx context.Context, p auth.Principal, filename, contentType string, expectedSize int64) (*model.UploadSession, error) {
	args := m.Called(ctx, p, filename, contentType, expectedSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadSession), args.Error(1)
}

func (m *MockDocumentService) GetSession(ctx context.Context, p auth.Principal, id string) (*model.UploadSession, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadSession), args.Error(1)
}
