package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vipul43/mailpilot/internal/models"
	"github.com/vipul43/mailpilot/internal/repository"
)

type mockMailSource struct {
	listFunc       func(ctx context.Context, accessToken, query string, maxResults int) ([]string, error)
	batchFunc      func(ctx context.Context, accessToken string, ids []string) ([]RawMessage, error)
	getFunc        func(ctx context.Context, accessToken, id string) (*RawMessage, error)
	countFunc func(ctx context.Context, accessToken, query string) (int, error)

	mu         sync.Mutex
	singleGets []string
}

func (m *mockMailSource) ListMessageIDs(ctx context.Context, accessToken, query string, maxResults int) ([]string, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, accessToken, query, maxResults)
	}
	return nil, nil
}

func (m *mockMailSource) BatchGetMetadata(ctx context.Context, accessToken string, ids []string) ([]RawMessage, error) {
	if m.batchFunc != nil {
		return m.batchFunc(ctx, accessToken, ids)
	}
	return nil, nil
}

func (m *mockMailSource) GetMetadata(ctx context.Context, accessToken, id string) (*RawMessage, error) {
	m.mu.Lock()
	m.singleGets = append(m.singleGets, id)
	m.mu.Unlock()
	if m.getFunc != nil {
		return m.getFunc(ctx, accessToken, id)
	}
	return nil, fmt.Errorf("message %s not found", id)
}

func (m *mockMailSource) CountMessages(ctx context.Context, accessToken, query string) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, accessToken, query)
	}
	return 0, nil
}

// memEmailStore enforces the (user_id, message_id) uniqueness the real table has.
type memEmailStore struct {
	mu   sync.Mutex
	rows []models.Email

	existingErr error
	insertHook  func(batch []models.Email) error
	listErrs    map[string]error
	updateErr   error
	updates     int
}

func newMemEmailStore(rows ...models.Email) *memEmailStore {
	return &memEmailStore{rows: rows, listErrs: map[string]error{}}
}

func (s *memEmailStore) ExistingMessageIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existingErr != nil {
		return nil, s.existingErr
	}
	var ids []string
	for _, r := range s.rows {
		if r.UserID == userID {
			ids = append(ids, r.MessageID)
		}
	}
	return ids, nil
}

func (s *memEmailStore) InsertBatch(ctx context.Context, batch []models.Email) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertHook != nil {
		if err := s.insertHook(batch); err != nil {
			return 0, err
		}
	}
	var n int64
	for _, row := range batch {
		if s.indexOf(row.UserID, row.MessageID) >= 0 {
			continue
		}
		s.rows = append(s.rows, row)
		n++
	}
	return n, nil
}

func (s *memEmailStore) RecentMessageIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.List(ctx, userID, repository.OrderByDate, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.MessageID)
	}
	return ids, nil
}

func (s *memEmailStore) DeleteExcept(ctx context.Context, userID string, keep []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var remaining []models.Email
	var deleted int64
	for _, r := range s.rows {
		if _, ok := kept[r.MessageID]; r.UserID == userID && !ok {
			deleted++
			continue
		}
		remaining = append(remaining, r)
	}
	s.rows = remaining
	return deleted, nil
}

func (s *memEmailStore) GetByMessageID(ctx context.Context, userID, messageID string) (*models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(userID, messageID)
	if i < 0 {
		return nil, repository.ErrEmailNotFound
	}
	row := s.rows[i]
	return &row, nil
}

func (s *memEmailStore) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates++
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Summary = &summary
		}
	}
	return nil
}

func (s *memEmailStore) List(ctx context.Context, userID string, orderBy string, limit int) ([]models.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listErrs[orderBy]; err != nil {
		return nil, err
	}
	var rows []models.Email
	for _, r := range s.rows {
		if r.UserID == userID {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if orderBy == repository.OrderByCreatedAt {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].Date.After(rows[j].Date)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// rowCount reports how many rows the user has stored
func (s *memEmailStore) rowCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memEmailStore) MissingSummaryIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, r := range s.rows {
		if r.UserID == userID && r.Summary == nil {
			ids = append(ids, r.MessageID)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *memEmailStore) indexOf(userID, messageID string) int {
	for i, r := range s.rows {
		if r.UserID == userID && r.MessageID == messageID {
			return i
		}
	}
	return -1
}

func (s *memEmailStore) messageIDs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool, len(s.rows))
	for _, r := range s.rows {
		ids[r.MessageID] = true
	}
	return ids
}

type memKeywordStore struct {
	mu       sync.Mutex
	keywords map[string][]string
	listErr  error
}

func newMemKeywordStore(userID string, keywords ...string) *memKeywordStore {
	return &memKeywordStore{keywords: map[string][]string{userID: keywords}}
}

func (s *memKeywordStore) List(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.keywords[userID]...), nil
}

func (s *memKeywordStore) Create(ctx context.Context, keyword models.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keywords[keyword.UserID] {
		if k == keyword.Keyword {
			return repository.ErrKeywordExists
		}
	}
	s.keywords[keyword.UserID] = append(s.keywords[keyword.UserID], keyword.Keyword)
	return nil
}

func (s *memKeywordStore) Delete(ctx context.Context, userID, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []string
	for _, k := range s.keywords[userID] {
		if k != keyword {
			kept = append(kept, k)
		}
	}
	s.keywords[userID] = kept
	return nil
}

type recordingQueue struct {
	mu     sync.Mutex
	calls  [][]string
	reject bool
}

func (q *recordingQueue) Enqueue(userID string, messageIDs []string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, append([]string(nil), messageIDs...))
	return !q.reject
}

func rawMessage(id, from, subject string, ts time.Time) RawMessage {
	return RawMessage{
		ID: id,
		Headers: []Header{
			{Name: "From", Value: from},
			{Name: "Subject", Value: subject},
		},
		Snippet:      "snippet of " + id,
		InternalDate: ts.UnixMilli(),
	}
}

func storedEmail(userID, messageID, from, subject, snippet string, date time.Time) models.Email {
	e := models.NewEmail(userID, messageID, from, subject, snippet, date)
	e.CreatedAt = date
	return e
}

// stallingEmailStore blocks the named calls until their context ends
type stallingEmailStore struct {
	*memEmailStore
	stalled map[string]bool
}

func (s *stallingEmailStore) stall(ctx context.Context, call string) error {
	if !s.stalled[call] {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallingEmailStore) ExistingMessageIDs(ctx context.Context, userID string) ([]string, error) {
	if err := s.stall(ctx, "ExistingMessageIDs"); err != nil {
		return nil, err
	}
	return s.memEmailStore.ExistingMessageIDs(ctx, userID)
}

func (s *stallingEmailStore) InsertBatch(ctx context.Context, batch []models.Email) (int64, error) {
	if err := s.stall(ctx, "InsertBatch"); err != nil {
		return 0, err
	}
	return s.memEmailStore.InsertBatch(ctx, batch)
}

func (s *stallingEmailStore) RecentMessageIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	if err := s.stall(ctx, "RecentMessageIDs"); err != nil {
		return nil, err
	}
	return s.memEmailStore.RecentMessageIDs(ctx, userID, limit)
}

func (s *stallingEmailStore) GetByMessageID(ctx context.Context, userID, messageID string) (*models.Email, error) {
	if err := s.stall(ctx, "GetByMessageID"); err != nil {
		return nil, err
	}
	return s.memEmailStore.GetByMessageID(ctx, userID, messageID)
}

func (s *stallingEmailStore) UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error {
	if err := s.stall(ctx, "UpdateSummary"); err != nil {
		return err
	}
	return s.memEmailStore.UpdateSummary(ctx, id, summary)
}
