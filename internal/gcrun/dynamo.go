package gcrun

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoRepo.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepo stores runs in a DynamoDB table with the string hash key "Id".
type DynamoRepo struct {
	client DynamoAPI

	tableName *string
}

func NewDynamoRepository(client DynamoAPI, tableName string) *DynamoRepo {
	return &DynamoRepo{
		client:    client,
		tableName: aws.String(tableName),
	}
}

func (r *DynamoRepo) Create(ctx context.Context, run *Run) error {
	marshaled, err := attributevalue.MarshalMap(run)
	if err != nil {
		return errors.Wrap(err, "marshal failed")
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: r.tableName,
		Item:      marshaled,
	})
	if err != nil {
		return errors.Wrap(err, "put failed")
	}

	return nil
}

func (r *DynamoRepo) Get(ctx context.Context, id string) (*Run, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: r.tableName,
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "get failed")
	}

	run := new(Run)
	err = attributevalue.UnmarshalMap(out.Item, run)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal failed")
	}

	if run.ID == "" {
		return nil, ErrNotFound
	}

	return run, nil
}

// List scans the whole table. The history is small (one item per gc run),
// so there is no secondary index on StartedAt.
func (r *DynamoRepo) List(ctx context.Context, limit int) ([]*Run, error) {
	limit = normalizeLimit(limit)

	var runs []*Run
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: r.tableName,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "scan failed")
		}

		var chunk []*Run
		err = attributevalue.UnmarshalListOfMaps(page.Items, &chunk)
		if err != nil {
			return nil, errors.Wrap(err, "unmarshal failed")
		}

		runs = append(runs, chunk...)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
