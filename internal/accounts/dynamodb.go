package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/securemsg/accountdir/internal/common"
)

// DynamoDBClient is the subset of the DynamoDB API the target store uses.
// *dynamodb.Client satisfies it.
type DynamoDBClient interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

const (
	attrAccountUUID = "U"
	attrNumber      = "P"
	attrData        = "D"
	attrVersion     = "V"
)

type dynamoAccountItem struct {
	UUID    []byte `dynamodbav:"U"`
	Number  string `dynamodbav:"P"`
	Data    []byte `dynamodbav:"D"`
	Version int    `dynamodbav:"V"`
}

type dynamoNumberItem struct {
	Number string `dynamodbav:"P"`
	UUID   []byte `dynamodbav:"U"`
}

// DynamoDBStore is the migration target. Accounts live in a table keyed by
// uuid; a second table maps each number to its uuid so number uniqueness is
// enforced transactionally on create.
type DynamoDBStore struct {
	client        DynamoDBClient
	accountsTable string
	numbersTable  string
}

func NewDynamoDBStore(client DynamoDBClient, accountsTable, numbersTable string) *DynamoDBStore {
	return &DynamoDBStore{client: client, accountsTable: accountsTable, numbersTable: numbersTable}
}

// Create claims the number and writes the account in one transaction. If the
// number is already claimed the write is not applied and false is returned;
// unlike the legacy store, the incoming account is never rewritten.
func (s *DynamoDBStore) Create(ctx context.Context, account *Account) (bool, error) {
	accountItem, err := s.marshalAccount(account)
	if err != nil {
		return false, err
	}

	numberItem, err := attributevalue.MarshalMap(dynamoNumberItem{
		Number: account.Number,
		UUID:   account.UUID[:],
	})
	if err != nil {
		return false, fmt.Errorf("number item serialization error: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.numbersTable),
					Item:                numberItem,
					ConditionExpression: aws.String("attribute_not_exists(#number)"),
					ExpressionAttributeNames: map[string]string{
						"#number": attrNumber,
					},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.accountsTable),
					Item:      accountItem,
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && hasConditionalCheckFailure(canceled) {
			return false, nil
		}
		return false, fmt.Errorf("dynamodb error: %w", err)
	}

	return true, nil
}

// Update replaces the account item, conditional on the stored version being
// exactly one behind. A failed precondition (missing item included) maps to
// common.ErrConditionalCheckFailed.
func (s *DynamoDBStore) Update(ctx context.Context, account *Account) error {
	item, err := s.marshalAccount(account)
	if err != nil {
		return err
	}

	expected, err := attributevalue.Marshal(account.MigrationVersion - 1)
	if err != nil {
		return fmt.Errorf("version serialization error: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.accountsTable),
		Item:                item,
		ConditionExpression: aws.String("#version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#version": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": expected,
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return common.ErrConditionalCheckFailed
		}
		return fmt.Errorf("dynamodb error: %w", err)
	}

	return nil
}

func (s *DynamoDBStore) GetByUUID(ctx context.Context, id uuid.UUID) (*Account, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.accountsTable),
		Key: map[string]types.AttributeValue{
			attrAccountUUID: &types.AttributeValueMemberB{Value: id[:]},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb error: %w", err)
	}
	if out.Item == nil {
		return nil, common.ErrorNotFound
	}

	return unmarshalDynamoAccount(out.Item)
}

func (s *DynamoDBStore) GetByNumber(ctx context.Context, number string) (*Account, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.numbersTable),
		Key: map[string]types.AttributeValue{
			attrNumber: &types.AttributeValueMemberS{Value: number},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb error: %w", err)
	}
	if out.Item == nil {
		return nil, common.ErrorNotFound
	}

	pointer := dynamoNumberItem{}
	if err := attributevalue.UnmarshalMap(out.Item, &pointer); err != nil {
		return nil, fmt.Errorf("number item deserialization error: %w", err)
	}

	id, err := uuid.FromBytes(pointer.UUID)
	if err != nil {
		return nil, fmt.Errorf("number item uuid error: %w", err)
	}

	return s.GetByUUID(ctx, id)
}

// Delete removes the account item and its number pointer. A missing account
// is not an error; re-delete is idempotent.
func (s *DynamoDBStore) Delete(ctx context.Context, id uuid.UUID) error {
	account, err := s.GetByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(s.numbersTable),
					Key: map[string]types.AttributeValue{
						attrNumber: &types.AttributeValueMemberS{Value: account.Number},
					},
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(s.accountsTable),
					Key: map[string]types.AttributeValue{
						attrAccountUUID: &types.AttributeValueMemberB{Value: id[:]},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb error: %w", err)
	}

	return nil
}

func (s *DynamoDBStore) marshalAccount(account *Account) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(account)
	if err != nil {
		return nil, fmt.Errorf("account serialization error: %w", err)
	}

	item, err := attributevalue.MarshalMap(dynamoAccountItem{
		UUID:    account.UUID[:],
		Number:  account.Number,
		Data:    data,
		Version: account.MigrationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("account item serialization error: %w", err)
	}

	return item, nil
}

func unmarshalDynamoAccount(item map[string]types.AttributeValue) (*Account, error) {
	row := dynamoAccountItem{}
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return nil, fmt.Errorf("account item deserialization error: %w", err)
	}

	account := &Account{}
	if err := json.Unmarshal(row.Data, account); err != nil {
		return nil, fmt.Errorf("account deserialization error: %w", err)
	}

	id, err := uuid.FromBytes(row.UUID)
	if err != nil {
		return nil, fmt.Errorf("account item uuid error: %w", err)
	}
	account.UUID = id
	account.MigrationVersion = row.Version

	return account, nil
}

func hasConditionalCheckFailure(canceled *types.TransactionCanceledException) bool {
	for _, reason := range canceled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
