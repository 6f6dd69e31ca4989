package planner

import (
	"context"
	"fmt"
	"io"

	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
)

// mockProvider is a mock implementation of storage.Provider for testing
type mockProvider struct {
	listFunc   func(ctx context.Context, prefix string) ([]storage.Record, error)
	readFunc   func(ctx context.Context, rec storage.Record) (io.ReadCloser, error)
	writeFunc  func(ctx context.Context, rec storage.Record, r io.Reader, overwrite bool) error
	deleteFunc func(ctx context.Context, rec storage.Record) error

	listCalls int
}

func listing(records ...storage.Record) *mockProvider {
	return &mockProvider{
		listFunc: func(ctx context.Context, prefix string) ([]storage.Record, error) {
			return records, nil
		},
	}
}

func (m *mockProvider) List(ctx context.Context, prefix string) ([]storage.Record, error) {
	m.listCalls++
	if m.listFunc != nil {
		return m.listFunc(ctx, prefix)
	}
	return nil, fmt.Errorf("List not implemented")
}

func (m *mockProvider) Read(ctx context.Context, rec storage.Record) (io.ReadCloser, error) {
	if m.readFunc != nil {
		return m.readFunc(ctx, rec)
	}
	return nil, fmt.Errorf("Read not implemented")
}

func (m *mockProvider) Write(ctx context.Context, rec storage.Record, r io.Reader, overwrite bool) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, rec, r, overwrite)
	}
	return fmt.Errorf("Write not implemented")
}

func (m *mockProvider) Delete(ctx context.Context, rec storage.Record) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, rec)
	}
	return fmt.Errorf("Delete not implemented")
}
