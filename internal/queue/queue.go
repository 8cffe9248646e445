package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Azure/azure-storage-queue-go/azqueue"
	"github.com/nmiodice/strava-drive-export/internal/orchestrator"
)

// DefaultMessageTTL keeps run summaries around for a week.
const DefaultMessageTTL = 7 * 24 * time.Hour

type messageEnqueuer interface {
	Enqueue(ctx context.Context, messageText string, visibilityTimeout time.Duration, timeToLive time.Duration) (*azqueue.EnqueueMessageResponse, error)
}

// SummaryPublisher posts every run summary to an Azure storage queue as base64
// encoded JSON.
type SummaryPublisher struct {
	messages messageEnqueuer
	ttl      time.Duration
}

var _ orchestrator.Reporter = (*SummaryPublisher)(nil)

// NewAzureStorageQueue connects to queueName, creating it when missing.
func NewAzureStorageQueue(ctx context.Context, queueName, accountName, accountKey string) (*SummaryPublisher, error) {
	primaryURLRaw := fmt.Sprintf("https://%s.queue.core.windows.net", accountName)
	primaryURL, err := url.Parse(primaryURLRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %v: %v", primaryURLRaw, err)
	}

	credential, err := azqueue.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	p := azqueue.NewPipeline(credential, azqueue.PipelineOptions{})
	serviceURL := azqueue.NewServiceURL(*primaryURL, p)
	queueURL := serviceURL.NewQueueURL(queueName)

	if _, err := queueURL.Create(ctx, azqueue.Metadata{}); err != nil {
		var stgErr azqueue.StorageError
		if !errors.As(err, &stgErr) || stgErr.ServiceCode() != azqueue.ServiceCodeQueueAlreadyExists {
			return nil, fmt.Errorf("creating queue %s: %w", queueName, err)
		}
	}

	return &SummaryPublisher{
		messages: queueURL.NewMessagesURL(),
		ttl:      DefaultMessageTTL,
	}, nil
}

func (p *SummaryPublisher) Report(ctx context.Context, s *orchestrator.Summary) error {
	_, err := p.Publish(ctx, s)
	return err
}

// Publish enqueues msg and returns the message id.
func (p *SummaryPublisher) Publish(ctx context.Context, msg interface{}) (string, error) {
	text, err := messageText(msg)
	if err != nil {
		return "", err
	}

	res, err := p.messages.Enqueue(ctx, text, 0, p.ttl)
	if err != nil {
		return "", fmt.Errorf("enqueueing message: %w", err)
	}
	return res.MessageID.String(), nil
}

func messageText(msg interface{}) (string, error) {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}
