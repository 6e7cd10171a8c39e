package assets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/securemsg/accountdir/internal/accounts"
)

// SQSClient is the subset of the SQS API the directory queue uses.
type SQSClient interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DirectoryQueue notifies the contact-discovery pipeline of account changes.
type DirectoryQueue struct {
	client   SQSClient
	queueURL string
}

func NewDirectoryQueue(client SQSClient, queueURL string) *DirectoryQueue {
	return &DirectoryQueue{client: client, queueURL: queueURL}
}

type directoryMessage struct {
	Action string `json:"action"`
	UUID   string `json:"uuid"`
	Number string `json:"number"`
}

// DeleteAccount enqueues a directory removal for the account.
func (q *DirectoryQueue) DeleteAccount(ctx context.Context, account *accounts.Account) error {
	body, err := json.Marshal(directoryMessage{
		Action: "delete",
		UUID:   account.UUID.String(),
		Number: account.Number,
	})
	if err != nil {
		return fmt.Errorf("directory message serialization error: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs error: %w", err)
	}

	return nil
}
