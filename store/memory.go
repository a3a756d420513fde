package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkmark/slack-integration"
)

// MemoryStore implements ItemStore with in-memory storage (for testing).
// It mirrors the DynamoDB semantics the repositories rely on: conditional
// puts, index queries ordered by sort key, list append with an empty
// default, and guarded positional removal.
type MemoryStore struct {
	items map[string]*Item
	now   func() time.Time
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory item store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*Item),
		now:   time.Now,
	}
}

func memoryKey(partitionKey, sortKey string) string {
	return partitionKey + "|" + sortKey
}

func (s *MemoryStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *MemoryStore) Put(ctx context.Context, item Item, uniqueByKey bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(item.PartitionKey, item.SortKey)
	if _, exists := s.items[key]; exists && uniqueByKey {
		return bkmark.AlreadyExistsError(fmt.Sprintf("item %s/%s already exists", item.PartitionKey, item.SortKey))
	}

	ts := s.timestamp()
	if item.Created == "" {
		item.Created = ts
	}
	item.Updated = ts

	copied := copyItem(&item)
	s.items[key] = copied

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, partitionKey, sortKey string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[memoryKey(partitionKey, sortKey)]
	if !exists {
		return nil, bkmark.NotFoundError(fmt.Sprintf("item %s/%s not found", partitionKey, sortKey))
	}

	return copyItem(item), nil
}

func (s *MemoryStore) QueryIndex(ctx context.Context, index, partitionKey, sortKey string, limit int32, scanForward bool) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*Item
	for _, item := range s.items {
		key := item.GSI1
		if index == IndexGSI2 {
			key = item.GSI2
		}
		if key == nil || key.PartitionKey != partitionKey || key.SortKey != sortKey {
			continue
		}
		matches = append(matches, item)
	}

	// Items sharing an index key pair are tie-broken by primary sort key,
	// which is also what distinguishes them in the table.
	sort.Slice(matches, func(i, j int) bool {
		if scanForward {
			return matches[i].SortKey < matches[j].SortKey
		}
		return matches[i].SortKey > matches[j].SortKey
	})

	if limit > 0 && int32(len(matches)) > limit {
		matches = matches[:limit]
	}

	items := make([]Item, 0, len(matches))
	for _, m := range matches {
		items = append(items, *copyItem(m))
	}

	return items, nil
}

func (s *MemoryStore) Update(ctx context.Context, partitionKey, sortKey string, update Update) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[memoryKey(partitionKey, sortKey)]
	if !exists {
		// DynamoDB upserts on update; the repositories never rely on that,
		// so the memory store treats it as a miss to catch bad callers.
		return nil, bkmark.NotFoundError(fmt.Sprintf("item %s/%s not found", partitionKey, sortKey))
	}

	// Check the removal guard before mutating anything.
	if r := update.Remove; r != nil {
		list, ok := item.Data[r.Field].(*types.AttributeValueMemberL)
		if !ok || r.Index < 0 || r.Index >= len(list.Value) {
			return nil, bkmark.ConflictError(fmt.Sprintf("no element at %s[%d]", r.Field, r.Index))
		}
		if r.Expected != nil && !reflect.DeepEqual(list.Value[r.Index], r.Expected) {
			return nil, bkmark.ConflictError(fmt.Sprintf("guarded update of %s/%s lost its race", partitionKey, sortKey))
		}
	}

	for field, value := range update.Set {
		item.Data[field] = value
	}

	for field, value := range update.ListAppend {
		appended, ok := value.(*types.AttributeValueMemberL)
		if !ok {
			return nil, fmt.Errorf("list append on %s requires a list value", field)
		}
		existing, ok := item.Data[field].(*types.AttributeValueMemberL)
		if !ok {
			existing = &types.AttributeValueMemberL{}
		}
		merged := append(append([]types.AttributeValue{}, existing.Value...), appended.Value...)
		item.Data[field] = &types.AttributeValueMemberL{Value: merged}
	}

	if r := update.Remove; r != nil {
		list := item.Data[r.Field].(*types.AttributeValueMemberL)
		remaining := append([]types.AttributeValue{}, list.Value[:r.Index]...)
		remaining = append(remaining, list.Value[r.Index+1:]...)
		item.Data[r.Field] = &types.AttributeValueMemberL{Value: remaining}
	}

	if update.GSI1 != nil {
		key := *update.GSI1
		item.GSI1 = &key
	}
	if update.GSI2 != nil {
		key := *update.GSI2
		item.GSI2 = &key
	}

	ts := s.timestamp()
	item.Updated = ts
	item.Data["updated"] = &types.AttributeValueMemberS{Value: ts}

	return copyItem(item), nil
}

func (s *MemoryStore) Delete(ctx context.Context, partitionKey, sortKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, memoryKey(partitionKey, sortKey))
	return nil
}

func copyItem(item *Item) *Item {
	copied := *item
	copied.Data = make(map[string]types.AttributeValue, len(item.Data))
	for k, v := range item.Data {
		copied.Data[k] = v
	}
	if item.GSI1 != nil {
		key := *item.GSI1
		copied.GSI1 = &key
	}
	if item.GSI2 != nil {
		key := *item.GSI2
		copied.GSI2 = &key
	}
	return &copied
}
