package assets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// KeysDynamoDBClient is the subset of the DynamoDB API the keys store uses.
type KeysDynamoDBClient interface {
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// KeysStore removes an account's pre-key bundle from the keys table.
type KeysStore struct {
	client KeysDynamoDBClient
	table  string
}

func NewKeysStore(client KeysDynamoDBClient, table string) *KeysStore {
	return &KeysStore{client: client, table: table}
}

func (s *KeysStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"U": &types.AttributeValueMemberB{Value: id[:]},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb error: %w", err)
	}
	return nil
}
