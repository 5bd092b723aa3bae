package gcrun

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dynamoMock struct {
	table string
	items map[string]map[string]types.AttributeValue

	scanErr error
}

func newDynamoMock(table string) *dynamoMock {
	return &dynamoMock{
		table: table,
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func (m *dynamoMock) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if *params.TableName != m.table {
		return nil, errors.New("unknown table")
	}

	id := params.Item["Id"].(*types.AttributeValueMemberS).Value
	m.items[id] = params.Item

	return &dynamodb.PutItemOutput{}, nil
}

func (m *dynamoMock) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := params.Key["Id"].(*types.AttributeValueMemberS).Value

	return &dynamodb.GetItemOutput{Item: m.items[id]}, nil
}

func (m *dynamoMock) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}

	out := &dynamodb.ScanOutput{}
	for _, item := range m.items {
		out.Items = append(out.Items, item)
	}

	return out, nil
}

func TestDynamoRepo(t *testing.T) {
	ctx := context.Background()
	mock := newDynamoMock("GCRuns")
	repo := NewDynamoRepository(mock, "GCRuns")

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, newTestRun(i)))
	}

	failed := newTestRun(9)
	failed.OK = false
	failed.FailedStep = "stop"
	failed.ExitCode = 1
	failed.Error = "no such container: cargo_registry"
	require.NoError(t, repo.Create(ctx, failed))

	got, err := repo.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.True(t, failed.StartedAt.Equal(got.StartedAt))
	assert.False(t, got.OK)
	assert.Equal(t, "stop", got.FailedStep)
	assert.Equal(t, 1, got.ExitCode)
	assert.Equal(t, failed.Error, got.Error)
	assert.Len(t, got.Steps, 2)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := repo.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-9", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, "run-2", runs[2].ID)
}

func TestDynamoRepo_ScanFailure(t *testing.T) {
	mock := newDynamoMock("GCRuns")
	mock.scanErr = errors.New("throttled")

	_, err := NewDynamoRepository(mock, "GCRuns").List(context.Background(), 5)
	assert.Error(t, err)
}
