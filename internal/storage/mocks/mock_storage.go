package mocks

import (
	"context"
	"io"
	"time"

	"docvault/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.Location, error) {
	if r != nil {
		// Real backends consume the stream; callers rely on that (e.g. to
		// hash the content through a TeeReader).
		io.Copy(io.Discard, r)
	}
	args := m.Called(ctx, key, r, opt)
	if f, ok := args.Get(0).(func(context.Context, string, io.Reader, storage.PutObjectOptions) storage.Location); ok {
		return f(ctx, key, r, opt), args.Error(1)
	}
	return args.Get(0).(storage.Location), args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, loc storage.Location) ([]byte, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) GetStream(ctx context.Context, loc storage.Location) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockStorage) Delete(ctx context.Context, loc storage.Location) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, loc storage.Location) (bool, error) {
	args := m.Called(ctx, loc)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) Stat(ctx context.Context, loc storage.Location) (storage.ObjectInfo, error) {
	args := m.Called(ctx, loc)
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockStorage) Presign(ctx context.Context, loc storage.Location, expiry time.Duration, op storage.PresignOp) (string, error) {
	args := m.Called(ctx, loc, expiry, op)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, prefix string, limit int, token string) (storage.ListResult, error) {
	args := m.Called(ctx, prefix, limit, token)
	return args.Get(0).(storage.ListResult), args.Error(1)
}

func (m *MockStorage) Copy(ctx context.Context, src, dst storage.Location) error {
	args := m.Called(ctx, src, dst)
	return args.Error(0)
}

func (m *MockStorage) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
