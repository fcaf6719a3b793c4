package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"follow-go/internal/model"
	"follow-go/internal/repository"

	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unavailable")

// memStore 内存版关系表 + 计数 + 幂等台账，一把锁模拟事务
type memStore struct {
	mu            sync.Mutex
	follows       map[uuid.UUID]*model.Follow
	followerCount map[uuid.UUID]int64
	users         map[uuid.UUID]bool
	ledger        map[string]bool
	increaseFails map[uuid.UUID]int // 剩余失败次数，<0 表示一直失败
	decreaseFails map[uuid.UUID]int
	appliedIncr   int
	appliedDecr   int
	findErr       error
	deleteErr     error
	now           time.Time
	blockIncrease bool
}

func newMemStore() *memStore {
	return &memStore{
		follows:       map[uuid.UUID]*model.Follow{},
		followerCount: map[uuid.UUID]int64{},
		users:         map[uuid.UUID]bool{},
		ledger:        map[string]bool{},
		increaseFails: map[uuid.UUID]int{},
		decreaseFails: map[uuid.UUID]int{},
		now:           time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addUser() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = true
	return id
}

// seed 直接插入一条关系
func (m *memStore) seed(status model.FollowStatus, retry int, counted bool) *model.Follow {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := model.NewPendingFollow(uuid.New(), uuid.New())
	f.Status = status
	f.RetryCount = retry
	f.Counted = counted
	m.now = m.now.Add(time.Second)
	f.CreatedAt = m.now
	m.follows[f.ID] = f
	if counted {
		m.followerCount[f.FolloweeID]++
	}
	return f
}

func (m *memStore) get(id uuid.UUID) (model.Follow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.follows[id]
	if !ok {
		return model.Follow{}, false
	}
	return *f, true
}

func (m *memStore) count(followee uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.followerCount[followee]
}

func (m *memStore) failIncrease(id uuid.UUID, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increaseFails[id] = times
}

func (m *memStore) failDecrease(id uuid.UUID, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decreaseFails[id] = times
}

func takeFailure(fails map[uuid.UUID]int, id uuid.UUID) bool {
	n, ok := fails[id]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		fails[id] = n - 1
	}
	return true
}

// --- FollowStore ---

func (m *memStore) FindByStatus(_ context.Context, status model.FollowStatus) ([]model.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []model.Follow
	for _, f := range m.follows {
		if f.Status == status {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) DeleteAll(_ context.Context, follows []model.Follow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for _, f := range follows {
		if cur, ok := m.follows[f.ID]; ok && cur.Status == f.Status {
			delete(m.follows, f.ID)
			n++
		}
	}
	return n, nil
}

func (m *memStore) RecordFailure(_ context.Context, id uuid.UUID, trigger model.Trigger, maxRetry int) (*model.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.follows[id]
	if !ok {
		return nil, repository.ErrFollowNotFound
	}
	next, err := model.NextState(f.State(), trigger, maxRetry)
	if errors.Is(err, model.ErrInvalidTransition) {
		cp := *f
		return &cp, nil
	}
	if err != nil {
		return nil, err
	}
	f.Apply(next)
	cp := *f
	return &cp, nil
}

// --- CounterMutator ---

func (m *memStore) ApplyIncrease(ctx context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (repository.MutationResult, error) {
	m.mu.Lock()
	block := m.blockIncrease
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if takeFailure(m.increaseFails, followID) {
		return "", errStoreDown
	}
	if mark != nil {
		if m.ledger[mark.EventID] {
			return repository.MutationDuplicate, nil
		}
		m.ledger[mark.EventID] = true
	}
	f, ok := m.follows[followID]
	if !ok {
		return repository.MutationSkipped, nil
	}
	if f.FolloweeID != followeeID {
		if mark != nil {
			delete(m.ledger, mark.EventID)
		}
		return "", repository.ErrFolloweeMismatch
	}
	next, err := model.NextState(f.State(), model.TriggerIncreaseSucceeded, 0)
	if err != nil {
		return repository.MutationSkipped, nil
	}
	m.followerCount[followeeID]++
	m.appliedIncr++
	f.Apply(next)
	f.Counted = true
	return repository.MutationApplied, nil
}

func (m *memStore) ApplyDecrease(_ context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (repository.MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if takeFailure(m.decreaseFails, followID) {
		return "", errStoreDown
	}
	if mark != nil {
		if m.ledger[mark.EventID] {
			return repository.MutationDuplicate, nil
		}
		m.ledger[mark.EventID] = true
	}
	f, ok := m.follows[followID]
	if !ok {
		return repository.MutationSkipped, nil
	}
	if f.FolloweeID != followeeID {
		if mark != nil {
			delete(m.ledger, mark.EventID)
		}
		return "", repository.ErrFolloweeMismatch
	}
	if _, err := model.NextState(f.State(), model.TriggerDecreaseSucceeded, 0); err != nil {
		return repository.MutationSkipped, nil
	}
	if f.Counted && m.followerCount[followeeID] > 0 {
		m.followerCount[followeeID]--
	}
	m.appliedDecr++
	delete(m.follows, followID)
	return repository.MutationApplied, nil
}

// --- FollowRelations / UserLookup ---

func (m *memStore) CreatePending(_ context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.follows {
		if f.FollowerID != followerID || f.FolloweeID != followeeID {
			continue
		}
		switch {
		case f.Status.Active():
			return nil, repository.ErrFollowExists
		case f.Status == model.StatusCancelled:
			return nil, repository.ErrFollowCancelling
		default:
			delete(m.follows, id)
		}
	}
	f := model.NewPendingFollow(followerID, followeeID)
	m.now = m.now.Add(time.Second)
	f.CreatedAt = m.now
	m.follows[f.ID] = f
	cp := *f
	return &cp, nil
}

func (m *memStore) Cancel(_ context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.follows {
		if f.FollowerID != followerID || f.FolloweeID != followeeID {
			continue
		}
		next, err := model.NextState(f.State(), model.TriggerUnfollow, 0)
		if err != nil {
			return nil, err
		}
		f.Apply(next)
		cp := *f
		return &cp, nil
	}
	return nil, repository.ErrFollowNotFound
}

func (m *memStore) GetByPair(_ context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.follows {
		if f.FollowerID == followerID && f.FolloweeID == followeeID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repository.ErrFollowNotFound
}

func (m *memStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

// fakePublisher 记录发布的事件
type fakePublisher struct {
	mu        sync.Mutex
	increases []uuid.UUID
	decreases []uuid.UUID
	err       error
}

func (p *fakePublisher) PublishIncrease(_ context.Context, f *model.Follow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.increases = append(p.increases, f.ID)
	return p.err
}

func (p *fakePublisher) PublishDecrease(_ context.Context, f *model.Follow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decreases = append(p.decreases, f.ID)
	return p.err
}

// fakeLocker 可配置是否被占用
type fakeLocker struct {
	busy     bool
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.busy {
		return nil, false, nil
	}
	l.acquired = append(l.acquired, name)
	return func() { l.released++ }, true, nil
}
