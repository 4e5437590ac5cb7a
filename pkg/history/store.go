package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultFileName = ".signet-swap-orders.json"
)

// Status is the lifecycle state of a recorded order
type Status string

const (
	StatusPending Status = "pending"
	StatusFilled  Status = "filled"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

// Record is a submitted order as shown in the local history
type Record struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	Timestamp     time.Time `json:"timestamp"`
	SourceToken   string    `json:"sourceToken"`
	TargetToken   string    `json:"targetToken"`
	SourceAmount  string    `json:"sourceAmount"`
	TargetAmount  string    `json:"targetAmount"`
	SourceChainID uint64    `json:"sourceChainId"`
	TargetChainID uint64    `json:"targetChainId"`
	Deadline      uint64    `json:"deadline"`
	Status        Status    `json:"status"`
	TxHash        string    `json:"txHash,omitempty"`
}

// Expired reports whether a pending record's deadline has passed
func (r Record) Expired(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	deadline := r.Deadline
	if deadline == 0 {
		deadline = uint64(r.Timestamp.Add(5 * time.Minute).Unix())
	}
	return now.Unix() > int64(deadline)
}

// Store persists order history
type Store interface {
	Save(record Record) error
	List() ([]Record, error)
}

// FileStore keeps order history in a JSON file
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
	now      func() time.Time
}

// fileContents is the JSON layout on disk
type fileContents struct {
	Orders []*Record `json:"orders"`
}

// NewFileStore opens the history file, creating it lazily on first save
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		// Default to home directory
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &FileStore{
		filePath: filePath,
		records:  make(map[string]*Record),
		now:      time.Now,
	}

	if err := s.load(); err != nil {
		// If file doesn't exist, that's okay - we'll create it on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load order history: %w", err)
		}
	}

	return s, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("failed to unmarshal order history: %w", err)
	}

	for _, r := range contents.Orders {
		if r != nil && r.ID != "" {
			s.records[r.ID] = r
		}
	}
	return nil
}

// persist writes every record; callers hold the write lock
func (s *FileStore) persist() error {
	contents := fileContents{Orders: s.sorted()}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal order history: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write order history: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// sorted returns the records newest first
func (s *FileStore) sorted() []*Record {
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Save inserts or replaces a record. Missing ID, timestamp and status are
// filled in.
func (s *FileStore) Save(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}
	if record.Status == "" {
		record.Status = StatusPending
	}

	s.records[record.ID] = &record
	return s.persist()
}

// List returns every record newest first. Pending records past their
// deadline are marked expired.
func (s *FileStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	changed := false
	for _, r := range s.records {
		if r.Expired(now) {
			r.Status = StatusExpired
			changed = true
		}
	}
	if changed {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}

	records := make([]Record, 0, len(s.records))
	for _, r := range s.sorted() {
		records = append(records, *r)
	}
	return records, nil
}

// Get finds a record by its ID, order ID, or a unique prefix of either
func (s *FileStore) Get(key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.find(key)
	if err != nil {
		return Record{}, err
	}
	return *r, nil
}

// UpdateStatus sets the status of the record matching key
func (s *FileStore) UpdateStatus(key string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.find(key)
	if err != nil {
		return err
	}
	if r.Status == status {
		return nil
	}
	r.Status = status
	return s.persist()
}

func (s *FileStore) find(key string) (*Record, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return nil, fmt.Errorf("order id is required")
	}

	var match *Record
	for _, r := range s.records {
		id, orderID := strings.ToLower(r.ID), strings.ToLower(r.OrderID)
		if id == key || orderID == key {
			return r, nil
		}
		if strings.HasPrefix(id, key) || (orderID != "" && strings.HasPrefix(orderID, key)) {
			if match != nil && match != r {
				return nil, fmt.Errorf("order id '%s' is ambiguous", key)
			}
			match = r
		}
	}
	if match == nil {
		return nil, fmt.Errorf("order '%s' not found", key)
	}
	return match, nil
}

// Count returns the number of records
func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FilePath returns the history file path
func (s *FileStore) FilePath() string {
	return s.filePath
}
