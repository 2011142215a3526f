// Package testutil provides in-memory doubles for handler tests.
package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plate-filler/backend/internal/models"
	"github.com/plate-filler/backend/internal/storage"
)

// MockStorage implements storage.Store for testing. With a temp directory
// it also writes files to disk so parsers can read them back.
type MockStorage struct {
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	tempDir  string
	mu       sync.RWMutex

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
}

// NewMockStorage creates an in-memory mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

// NewMockStorageWithTempDir creates a mock storage that writes files to the given temp directory
func NewMockStorageWithTempDir(tempDir string) *MockStorage {
	m := NewMockStorage()
	m.tempDir = tempDir
	return m
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	return m.AddFile(generateTestID(), name, data), nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return file, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]*models.FileInfo, 0, len(m.files))
	for _, file := range m.files {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, exists := m.files[id]
	if !exists {
		return storage.ErrFileNotFound
	}
	if m.tempDir != "" {
		if err := os.Remove(m.diskPath(id, file.Name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return "", storage.ErrFileNotFound
	}
	if m.tempDir == "" {
		return "/mock/path/" + id, nil
	}
	return m.diskPath(id, file.Name), nil
}

func (m *MockStorage) SetStatus(id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok {
		return storage.ErrFileNotFound
	}
	file.Status = status
	return nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

func (m *MockStorage) diskPath(id, name string) string {
	return filepath.Join(m.tempDir, id+strings.ToLower(filepath.Ext(name)))
}

// AddFile adds a file directly to the mock
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tempDir != "" {
		if err := os.WriteFile(m.diskPath(id, name), data, 0644); err != nil {
			panic(fmt.Sprintf("failed to write test file: %v", err))
		}
	}

	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     storage.StatusUploaded,
	}
	m.files[id] = file
	m.fileData[id] = data
	return file
}

// GetFileData returns the file content
func (m *MockStorage) GetFileData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
