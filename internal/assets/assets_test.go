package assets

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securemsg/accountdir/internal/accounts"
)

type fakeSQSClient struct {
	in  *sqs.SendMessageInput
	err error
}

func (c *fakeSQSClient) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.in = in
	return &sqs.SendMessageOutput{}, c.err
}

func TestDirectoryQueue_DeleteAccount(t *testing.T) {
	client := &fakeSQSClient{}
	queue := NewDirectoryQueue(client, "https://sqs/queue")

	account := &accounts.Account{UUID: uuid.New(), Number: "+14155550101"}
	require.NoError(t, queue.DeleteAccount(context.Background(), account))

	require.NotNil(t, client.in)
	assert.Equal(t, "https://sqs/queue", aws.ToString(client.in.QueueUrl))

	body := map[string]string{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.in.MessageBody)), &body))
	assert.Equal(t, "delete", body["action"])
	assert.Equal(t, account.UUID.String(), body["uuid"])
	assert.Equal(t, "+14155550101", body["number"])
}

func TestDirectoryQueue_SendFailure(t *testing.T) {
	client := &fakeSQSClient{err: errors.New("queue unavailable")}
	queue := NewDirectoryQueue(client, "https://sqs/queue")

	err := queue.DeleteAccount(context.Background(), &accounts.Account{UUID: uuid.New()})

	assert.Error(t, err)
}

type fakeS3Client struct {
	in  *s3.DeleteObjectInput
	err error
}

func (c *fakeS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.in = in
	return &s3.DeleteObjectOutput{}, c.err
}

func TestSecureStorageClient_DeleteStoredData(t *testing.T) {
	client := &fakeS3Client{}
	storage := NewSecureStorageClient(client, "secure-storage")
	id := uuid.New()

	require.NoError(t, storage.DeleteStoredData(context.Background(), id))

	require.NotNil(t, client.in)
	assert.Equal(t, "secure-storage", aws.ToString(client.in.Bucket))
	assert.Equal(t, id.String(), aws.ToString(client.in.Key))
}

func TestSecureBackupClient_DeleteBackups(t *testing.T) {
	client := &fakeS3Client{err: errors.New("bucket unavailable")}
	backup := NewSecureBackupClient(client, "secure-backup")

	err := backup.DeleteBackups(context.Background(), uuid.New())

	assert.Error(t, err)
	assert.Equal(t, "secure-backup", aws.ToString(client.in.Bucket))
}

type fakeKeysClient struct {
	in  *dynamodb.DeleteItemInput
	err error
}

func (c *fakeKeysClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.in = in
	return &dynamodb.DeleteItemOutput{}, c.err
}

func TestKeysStore_Delete(t *testing.T) {
	client := &fakeKeysClient{}
	store := NewKeysStore(client, "Keys")
	id := uuid.New()

	require.NoError(t, store.Delete(context.Background(), id))

	require.NotNil(t, client.in)
	assert.Equal(t, "Keys", aws.ToString(client.in.TableName))
	key, ok := client.in.Key["U"].(*dynamotypes.AttributeValueMemberB)
	require.True(t, ok)
	assert.Equal(t, id[:], key.Value)
}

func TestRelationalSinks_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM usernames WHERE uuid = $1")).
		WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM profiles WHERE uuid = $1")).
		WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM messages WHERE destination_uuid = $1")).
		WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 12))

	require.NoError(t, NewUsernamesRepository(db).Delete(context.Background(), id))
	require.NoError(t, NewProfilesRepository(db).DeleteAll(context.Background(), id))
	require.NoError(t, NewMessagesRepository(db).Clear(context.Background(), id))

	assert.NoError(t, mock.ExpectationsWereMet())
}
