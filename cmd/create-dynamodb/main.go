package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var tableName string
	var wait time.Duration

	flag.StringVar(&tableName, "table", "GCRuns", "Name of the gc run history table")
	flag.DurationVar(&wait, "wait", 2*time.Minute, "How long to wait for the table to become active, 0 disables waiting")
	flag.Parse()

	awsRegion := os.Getenv("AWS_REGION")

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(awsRegion))
	if err != nil {
		zlog.Fatal().Err(err).Msg("AWS config cannot be loaded")
	}

	client := dynamodb.NewFromConfig(cfg)

	param := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("Id"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("Id"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
		TableName:   aws.String(tableName),
		TableClass:  types.TableClassStandardInfrequentAccess,
	}

	_, err = client.CreateTable(context.TODO(), param)
	if err != nil {
		zlog.Fatal().Err(err).Msg("table creation failed")
	}

	if wait > 0 {
		waiter := dynamodb.NewTableExistsWaiter(client)
		err = waiter.Wait(context.TODO(), &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, wait)
		if err != nil {
			zlog.Fatal().Err(err).Str("table_name", tableName).Msg("table has not become active")
		}
	}

	zlog.Info().Str("table_name", tableName).Msg("created successfully")
}
