package attachment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

type fakeRepo struct {
	mu        sync.Mutex
	items     map[string]*entity.Attachment
	createErr error
	getErr    map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[string]*entity.Attachment{}, getErr: map[string]error{}}
}

func (r *fakeRepo) Create(_ context.Context, a *entity.Attachment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*entity.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.getErr[id]; err != nil {
		return nil, err
	}
	a, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListByConversation(_ context.Context, conversationID string) ([]*entity.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Attachment
	for _, a := range r.items {
		if a.ConversationID == conversationID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByMessage(context.Context, string) ([]*entity.Attachment, error) {
	return nil, nil
}

func (r *fakeRepo) LinkToMessage(context.Context, []string, string) (int64, error) {
	return 0, nil
}

func (r *fakeRepo) UpdateMetadata(_ context.Context, id string, m entity.AttachmentMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.items[id]; ok {
		a.Metadata = m
	}
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut func(path string) bool
	delay   time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, path string, data []byte, _ string) error {
	if s.failPut != nil && s.failPut(path) {
		return errors.New("put failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, path string) ([]byte, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, service.ErrBlobNotFound)
	}
	return data, nil
}

func (s *fakeStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

func (s *fakeStore) SignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + path + "?sig=1", nil
}

func (s *fakeStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type countingCache struct {
	mu     sync.Mutex
	values map[string]string
	loads  int
}

func (c *countingCache) GetOrLoad(ctx context.Context, id string, load service.TextLoader) (string, error) {
	c.mu.Lock()
	if v, ok := c.values[id]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := load(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.values == nil {
		c.values = map[string]string{}
	}
	c.values[id] = v
	return v, nil
}
