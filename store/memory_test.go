package store

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkmark/slack-integration"
)

func stringValue(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func listValue(values ...types.AttributeValue) types.AttributeValue {
	return &types.AttributeValueMemberL{Value: values}
}

func TestMemoryStorePutUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	item := Item{
		PartitionKey: "user#u1",
		SortKey:      "user#u1",
		Type:         TypeUser,
		Data:         map[string]types.AttributeValue{"uuid": stringValue("u1")},
	}

	require.NoError(t, s.Put(ctx, item, true))

	err := s.Put(ctx, item, true)
	require.Error(t, err)
	assert.True(t, bkmark.IsAlreadyExists(err))

	// A non-unique put overwrites.
	assert.NoError(t, s.Put(ctx, item, false))
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "user#missing", "user#missing")
	require.Error(t, err)
	assert.True(t, bkmark.IsNotFound(err))
}

func TestMemoryStoreQueryIndexOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key := &IndexKey{PartitionKey: "slack-team#acme", SortKey: "slack-team#acme"}
	for _, id := range []string{"T1", "T2", "T3"} {
		require.NoError(t, s.Put(ctx, Item{
			PartitionKey: SlackTeamKey(id),
			SortKey:      SlackTeamKey(id),
			Type:         TypeSlackTeam,
			GSI1:         key,
			Data:         map[string]types.AttributeValue{"id": stringValue(id)},
		}, true))
	}

	newest, err := s.QueryIndex(ctx, IndexGSI1, key.PartitionKey, key.SortKey, 1, false)
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "slack-team#T3", newest[0].PartitionKey)

	all, err := s.QueryIndex(ctx, IndexGSI1, key.PartitionKey, key.SortKey, 10, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "slack-team#T1", all[0].PartitionKey)

	none, err := s.QueryIndex(ctx, IndexGSI1, "slack-team#other", key.SortKey, 10, true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreUpdateSetAndAppend(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Item{
		PartitionKey: "user#u1",
		SortKey:      "user#u1",
		Type:         TypeUser,
		Data:         map[string]types.AttributeValue{"forename": stringValue("Ada")},
	}, true))

	updated, err := s.Update(ctx, "user#u1", "user#u1", Update{
		Set: map[string]types.AttributeValue{"forename": stringValue("Grace")},
		ListAppend: map[string]types.AttributeValue{
			"organisations": listValue(stringValue("o1")),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, stringValue("Grace"), updated.Data["forename"])
	list := updated.Data["organisations"].(*types.AttributeValueMemberL)
	require.Len(t, list.Value, 1)

	// Append again: the list grows rather than being replaced.
	updated, err = s.Update(ctx, "user#u1", "user#u1", Update{
		ListAppend: map[string]types.AttributeValue{
			"organisations": listValue(stringValue("o2")),
		},
	})
	require.NoError(t, err)
	list = updated.Data["organisations"].(*types.AttributeValueMemberL)
	assert.Len(t, list.Value, 2)
}

func TestMemoryStoreUpdateMissingItem(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Update(context.Background(), "user#missing", "user#missing", Update{
		Set: map[string]types.AttributeValue{"forename": stringValue("Ada")},
	})
	require.Error(t, err)
	assert.True(t, bkmark.IsNotFound(err))
}

func TestMemoryStoreGuardedRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Item{
		PartitionKey: "user#u1",
		SortKey:      "user#u1",
		Type:         TypeUser,
		Data: map[string]types.AttributeValue{
			"collections": listValue(stringValue("c1"), stringValue("c2")),
		},
	}, true))

	// Guard mismatch: the element at index 0 is not c2.
	_, err := s.Update(ctx, "user#u1", "user#u1", Update{
		Remove: &ListRemove{Field: "collections", Index: 0, Expected: stringValue("c2")},
	})
	require.Error(t, err)
	assert.True(t, bkmark.IsConflict(err))

	// Matching guard removes the first element.
	updated, err := s.Update(ctx, "user#u1", "user#u1", Update{
		Remove: &ListRemove{Field: "collections", Index: 0, Expected: stringValue("c1")},
	})
	require.NoError(t, err)
	list := updated.Data["collections"].(*types.AttributeValueMemberL)
	require.Len(t, list.Value, 1)
	assert.Equal(t, stringValue("c2"), list.Value[0])

	// Out-of-range index is a conflict, not a panic.
	_, err = s.Update(ctx, "user#u1", "user#u1", Update{
		Remove: &ListRemove{Field: "collections", Index: 5, Expected: stringValue("c2")},
	})
	require.Error(t, err)
	assert.True(t, bkmark.IsConflict(err))
}

func TestMemoryStoreUpdateRewritesIndexes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Item{
		PartitionKey: "organisation#o1",
		SortKey:      "collection#c1",
		Type:         TypeCollection,
		Data:         map[string]types.AttributeValue{"uuid": stringValue("c1")},
	}, true))

	_, err := s.Update(ctx, "organisation#o1", "collection#c1", Update{
		GSI1: &IndexKey{PartitionKey: "team#T1", SortKey: "channel#C1"},
		GSI2: &IndexKey{PartitionKey: "domain#acme", SortKey: "channel#C1"},
	})
	require.NoError(t, err)

	byChannel, err := s.QueryIndex(ctx, IndexGSI1, "team#T1", "channel#C1", 1, false)
	require.NoError(t, err)
	require.Len(t, byChannel, 1)

	byDomain, err := s.QueryIndex(ctx, IndexGSI2, "domain#acme", "channel#C1", 1, false)
	require.NoError(t, err)
	require.Len(t, byDomain, 1)
}
