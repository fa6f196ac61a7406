package s3

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/dgcnn/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB table.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + version

	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}
	version := func(item map[string]types.AttributeValue) uint64 {
		v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
		return v
	}
	sort.Slice(items, func(i, j int) bool { return version(items[i]) > version(items[j]) })

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestDDBStore(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewDDBStore(inner, newMockDDBClient(), "dgcnn-checkpoints", "s3://bucket/run", "LATEST")

	_, err := store.Get(ctx, "LATEST")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	for i := 1; i <= 12; i++ {
		require.NoError(t, store.Put(ctx, "LATEST", []byte(fmt.Sprintf("ckpt-%08d.bin", i))))
	}
	got, err := store.Get(ctx, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, "ckpt-00000012.bin", string(got))

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)

	ok, err := blobstore.Exists(ctx, inner, "LATEST")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "ckpt-00000012.bin", []byte("payload")))
	data, err := inner.Get(ctx, "ckpt-00000012.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestDDBStoreIsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	a := NewDDBStore(blobstore.NewMemoryStore(), ddb, "t", "s3://a/run", "LATEST")
	b := NewDDBStore(blobstore.NewMemoryStore(), ddb, "t", "s3://b/run", "LATEST")

	require.NoError(t, a.Put(ctx, "LATEST", []byte("A")))
	require.NoError(t, b.Put(ctx, "LATEST", []byte("B")))

	got, err := a.Get(ctx, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))
	got, err = b.Get(ctx, "LATEST")
	require.NoError(t, err)
	assert.Equal(t, "B", string(got))
}

func TestDDBStoreConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store := NewDDBStore(blobstore.NewMemoryStore(), newMockDDBClient(), "t", "s3://bucket/run", "LATEST")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Put(ctx, "LATEST", []byte(fmt.Sprintf("ckpt-%d", i)))
			if err != nil {
				assert.ErrorIs(t, err, ErrConcurrentModification)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Positive(t, successes)
	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(successes), v)
}
