package events

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// HandlerFunc processes a single raw message body. A non-nil error leaves
// the message on the queue for redelivery or dead-lettering.
type HandlerFunc func(ctx context.Context, body []byte) error

// SqsAPI is the subset of the SQS client used by the consumer.
type SqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer long-polls a set of SQS queues and dispatches each message to its
// registered handler.
type Consumer struct {
	client   SqsAPI
	handlers map[string]HandlerFunc
}

// NewConsumer creates an empty consumer over the given SQS client.
func NewConsumer(client SqsAPI) *Consumer {
	return &Consumer{client: client, handlers: make(map[string]HandlerFunc)}
}

// Handle registers a handler for a queue URL. Empty URLs are ignored so
// unconfigured queues can simply be skipped.
func (c *Consumer) Handle(queueURL string, handler HandlerFunc) {
	if queueURL == "" {
		log.Println("No queue URL configured, skipping handler registration.")
		return
	}
	c.handlers[queueURL] = handler
}

// Run polls every registered queue until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for queueURL, handler := range c.handlers {
		wg.Add(1)
		go func(queueURL string, handler HandlerFunc) {
			defer wg.Done()
			c.poll(ctx, queueURL, handler)
		}(queueURL, handler)
	}
	wg.Wait()
}

func (c *Consumer) poll(ctx context.Context, queueURL string, handler HandlerFunc) {
	log.Printf("Polling queue %s.", queueURL)
	for {
		if ctx.Err() != nil {
			return
		}

		output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Failed to receive from queue %s: %v", queueURL, err)
			continue
		}

		for _, message := range output.Messages {
			body := ""
			if message.Body != nil {
				body = *message.Body
			}

			if err := handler(ctx, []byte(body)); err != nil {
				// Leave the message on the queue, SQS redelivers it
				// after the visibility timeout.
				log.Printf("Failed to handle message from queue %s: %v", queueURL, err)
				continue
			}

			_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(queueURL),
				ReceiptHandle: message.ReceiptHandle,
			})
			if err != nil {
				log.Printf("Failed to delete message from queue %s: %v", queueURL, err)
			}
		}
	}
}
