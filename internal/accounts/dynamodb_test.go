package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securemsg/accountdir/internal/common"
)

// fakeDynamoClient keeps both tables in memory and lets tests inject errors
// per API call.
type fakeDynamoClient struct {
	accounts map[string]map[string]types.AttributeValue
	numbers  map[string]map[string]types.AttributeValue

	getErr      error
	putErr      error
	transactErr error

	transactCalls int
}

func newFakeDynamoClient() *fakeDynamoClient {
	return &fakeDynamoClient{
		accounts: map[string]map[string]types.AttributeValue{},
		numbers:  map[string]map[string]types.AttributeValue{},
	}
}

func (c *fakeDynamoClient) table(name string) map[string]map[string]types.AttributeValue {
	if name == "numbers" {
		return c.numbers
	}
	return c.accounts
}

// itemKey extracts the partition key for the given table; number items carry
// both attributes, so the table decides which one keys the map.
func itemKey(table string, item map[string]types.AttributeValue) string {
	if table == "numbers" {
		if v, ok := item[attrNumber].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	if v, ok := item[attrAccountUUID].(*types.AttributeValueMemberB); ok {
		return string(v.Value)
	}
	return ""
}

func (c *fakeDynamoClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	table := aws.ToString(in.TableName)
	item := c.table(table)[itemKey(table, in.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (c *fakeDynamoClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if c.putErr != nil {
		return nil, c.putErr
	}
	table := aws.ToString(in.TableName)
	c.table(table)[itemKey(table, in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (c *fakeDynamoClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.transactCalls++
	if c.transactErr != nil {
		return nil, c.transactErr
	}

	// honour the number-claim condition before applying anything
	for _, item := range in.TransactItems {
		if item.Put == nil || item.Put.ConditionExpression == nil {
			continue
		}
		table := aws.ToString(item.Put.TableName)
		if _, claimed := c.table(table)[itemKey(table, item.Put.Item)]; claimed {
			return nil, &types.TransactionCanceledException{
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("ConditionalCheckFailed")},
					{Code: aws.String("None")},
				},
			}
		}
	}

	for _, item := range in.TransactItems {
		if item.Put != nil {
			table := aws.ToString(item.Put.TableName)
			c.table(table)[itemKey(table, item.Put.Item)] = item.Put.Item
		}
		if item.Delete != nil {
			table := aws.ToString(item.Delete.TableName)
			delete(c.table(table), itemKey(table, item.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (c *fakeDynamoClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	table := aws.ToString(in.TableName)
	delete(c.table(table), itemKey(table, in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func newDynamoFixture() (*DynamoDBStore, *fakeDynamoClient) {
	client := newFakeDynamoClient()
	return NewDynamoDBStore(client, "accounts", "numbers"), client
}

func TestDynamoDBStore_CreateAndGet(t *testing.T) {
	store, client := newDynamoFixture()
	account := testAccount("+14155550101")
	account.MigrationVersion = 3

	fresh, err := store.Create(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Len(t, client.accounts, 1)
	assert.Len(t, client.numbers, 1)

	byUUID, err := store.GetByUUID(context.Background(), account.UUID)
	require.NoError(t, err)
	assert.Equal(t, account.UUID, byUUID.UUID)
	assert.Equal(t, account.Number, byUUID.Number)
	assert.Equal(t, 3, byUUID.MigrationVersion)
	assert.Equal(t, account.Devices, byUUID.Devices)

	byNumber, err := store.GetByNumber(context.Background(), account.Number)
	require.NoError(t, err)
	assert.Equal(t, account.UUID, byNumber.UUID)
}

func TestDynamoDBStore_CreateClaimedNumber(t *testing.T) {
	store, _ := newDynamoFixture()
	existing := testAccount("+14155550101")
	_, err := store.Create(context.Background(), existing)
	require.NoError(t, err)

	incoming := testAccount("+14155550101")
	originalUUID := incoming.UUID

	fresh, err := store.Create(context.Background(), incoming)

	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, originalUUID, incoming.UUID, "target store never rewrites the uuid")

	// the existing claim stands
	got, err := store.GetByNumber(context.Background(), "+14155550101")
	require.NoError(t, err)
	assert.Equal(t, existing.UUID, got.UUID)
}

func TestDynamoDBStore_CreateOtherTransactionFailure(t *testing.T) {
	store, client := newDynamoFixture()
	client.transactErr = errors.New("throughput exceeded")

	_, err := store.Create(context.Background(), testAccount("+14155550101"))

	require.Error(t, err)
}

func TestDynamoDBStore_UpdateConditional(t *testing.T) {
	store, _ := newDynamoFixture()
	account := testAccount("+14155550101")
	_, err := store.Create(context.Background(), account)
	require.NoError(t, err)

	account.ProfileName = "new-ciphertext"
	account.MigrationVersion = 1

	require.NoError(t, store.Update(context.Background(), account))

	got, err := store.GetByUUID(context.Background(), account.UUID)
	require.NoError(t, err)
	assert.Equal(t, "new-ciphertext", got.ProfileName)
	assert.Equal(t, 1, got.MigrationVersion)
}

func TestDynamoDBStore_UpdateConflict(t *testing.T) {
	store, client := newDynamoFixture()
	client.putErr = &types.ConditionalCheckFailedException{}
	account := testAccount("+14155550101")
	account.MigrationVersion = 2

	err := store.Update(context.Background(), account)

	assert.ErrorIs(t, err, common.ErrConditionalCheckFailed)
}

func TestDynamoDBStore_GetByUUIDNotFound(t *testing.T) {
	store, _ := newDynamoFixture()

	_, err := store.GetByUUID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDynamoDBStore_GetByNumberNotFound(t *testing.T) {
	store, _ := newDynamoFixture()

	_, err := store.GetByNumber(context.Background(), "+14155550199")

	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDynamoDBStore_DeleteRemovesBothItems(t *testing.T) {
	store, client := newDynamoFixture()
	account := testAccount("+14155550101")
	_, err := store.Create(context.Background(), account)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), account.UUID))

	assert.Empty(t, client.accounts)
	assert.Empty(t, client.numbers)
}

func TestDynamoDBStore_DeleteMissingAccountIsIdempotent(t *testing.T) {
	store, client := newDynamoFixture()

	require.NoError(t, store.Delete(context.Background(), uuid.New()))
	assert.Zero(t, client.transactCalls)
}
