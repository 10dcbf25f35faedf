package job

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/pkg/blacklist"
)

// --- Documents Mock ---

type mockDocuments struct {
	mock.Mock
}

func (m *mockDocuments) GetJob(ctx context.Context, path string) (*model.Job, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *mockDocuments) AppendStatus(ctx context.Context, path, runID string, stage model.Stage) error {
	args := m.Called(ctx, path, runID, stage)
	return args.Error(0)
}

func (m *mockDocuments) Complete(ctx context.Context, path, runID string, results model.Results, outputs map[string]string) error {
	args := m.Called(ctx, path, runID, results, outputs)
	return args.Error(0)
}

// --- Blacklist Mock ---

type mockBlacklist struct {
	mock.Mock
}

func (m *mockBlacklist) Lookup(ctx context.Context, phones []string) ([]string, error) {
	args := m.Called(ctx, phones)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockBlacklist) BulkUpload(ctx context.Context, file []byte) ([]blacklist.CategoryCSV, error) {
	args := m.Called(ctx, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]blacklist.CategoryCSV), args.Error(1)
}

// --- Blob Mock ---

type mockBlob struct {
	mock.Mock
}

func (m *mockBlob) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	args := m.Called(ctx, bucket, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockBlob) Write(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	args := m.Called(ctx, bucket, name, data, contentType)
	return args.Error(0)
}
