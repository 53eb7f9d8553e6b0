package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"permit-enforcement/internal/domain/permit"
)

const (
	receiveBatch      = 10
	receiveWait       = 20
	visibilityTimeout = 60
	retryDelay        = 5 * time.Second
	// Unfinished messages of a batch get their visibility extended this often.
	heartbeatInterval = visibilityTimeout * time.Second / 2
)

type QueueAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// s3Event is the subset of an S3 event notification the consumer reads.
type s3Event struct {
	Records []s3Record `json:"Records"`
}

type s3Record struct {
	EventName string    `json:"eventName"`
	EventTime time.Time `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Size      int64  `json:"size"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

// SQSConsumer long-polls a queue subscribed to S3 object-created events and
// runs every uploaded object through the processor. A message is deleted only
// once all of its images were handled, so failures come back after the
// visibility timeout. Images carry an ID derived from the upload, which lets the
// processor skip the ones a redelivered message already covered.
type SQSConsumer struct {
	queue     QueueAPI
	objects   GetObjectAPI
	queueURL  string
	processor Processor
	heartbeat time.Duration
	log       zerolog.Logger
}

func NewSQSConsumer(queue QueueAPI, objects GetObjectAPI, queueURL string, processor Processor, log zerolog.Logger) *SQSConsumer {
	return &SQSConsumer{
		queue:     queue,
		objects:   objects,
		queueURL:  queueURL,
		processor: processor,
		heartbeat: heartbeatInterval,
		log:       log.With().Str("component", "sqs_consumer").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (c *SQSConsumer) Run(ctx context.Context) {
	c.log.Info().Str("queue_url", c.queueURL).Msg("sqs consumer started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("sqs consumer stopped")
			return
		}

		out, err := c.queue.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: receiveBatch,
			WaitTimeSeconds:     receiveWait,
			VisibilityTimeout:   visibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("receive message failed")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		if len(out.Messages) > 0 {
			c.handleBatch(ctx, out.Messages)
		}
	}
}

// handleBatch processes messages one by one while keeping the rest of the
// batch invisible to other consumers.
func (c *SQSConsumer) handleBatch(ctx context.Context, msgs []types.Message) {
	var mu sync.Mutex
	pending := make(map[int]*string, len(msgs))
	for i, msg := range msgs {
		if msg.ReceiptHandle != nil {
			pending[i] = msg.ReceiptHandle
		}
	}

	hbCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.keepInvisible(hbCtx, &mu, pending)
	}()
	defer func() {
		stop()
		<-done
	}()

	for i, msg := range msgs {
		log := c.log.With().Str("message_id", aws.ToString(msg.MessageId)).Logger()
		err := c.handleMessage(ctx, aws.ToString(msg.Body), log)

		mu.Lock()
		delete(pending, i)
		mu.Unlock()

		if err != nil {
			log.Warn().Err(err).Msg("message left on queue for redelivery")
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle, log)
	}
}

func (c *SQSConsumer) keepInvisible(ctx context.Context, mu *sync.Mutex, pending map[int]*string) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mu.Lock()
		handles := make([]*string, 0, len(pending))
		for _, h := range pending {
			handles = append(handles, h)
		}
		mu.Unlock()

		for _, h := range handles {
			_, err := c.queue.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          aws.String(c.queueURL),
				ReceiptHandle:     h,
				VisibilityTimeout: visibilityTimeout,
			})
			if err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("extend message visibility failed")
			}
		}
	}
}

func (c *SQSConsumer) handleMessage(ctx context.Context, body string, log zerolog.Logger) error {
	if body == "" {
		log.Warn().Msg("empty message body, discarding")
		return nil
	}

	var event s3Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		log.Warn().Err(err).Msg("message is not an s3 event, discarding")
		return nil
	}

	var errs []error
	for _, rec := range event.Records {
		if err := c.handleRecord(ctx, rec, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *SQSConsumer) handleRecord(ctx context.Context, rec s3Record, log zerolog.Logger) error {
	bucket := rec.S3.Bucket.Name
	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		key = rec.S3.Object.Key
	}
	log = log.With().Str("bucket", bucket).Str("key", key).Logger()

	obj, err := c.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}

	img := permit.Image{
		// Redeliveries of the same upload keep the same image ID.
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte("s3://"+bucket+"/"+key+"#"+rec.S3.Object.Sequencer)),
		Name:      key,
		Size:      int64(len(data)),
		Source:    SourceSQS,
		Data:      data,
		ArrivedAt: rec.EventTime,
	}
	if img.ArrivedAt.IsZero() {
		img.ArrivedAt = time.Now()
	}

	if _, err := c.processor.ProcessImage(ctx, img); err != nil {
		if !retryable(err) {
			log.Warn().Err(err).Msg("image rejected, not retrying")
			return nil
		}
		return err
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string, log zerolog.Logger) {
	if receiptHandle == nil {
		log.Warn().Msg("message has no receipt handle, cannot delete")
		return
	}
	_, err := c.queue.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Error().Err(err).Msg("delete message failed")
	}
}
