package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"github.com/Health-Education-England/tis-trainee-actions/internal/models"
)

// ActionBroadcast is the payload published for every action mutation. A
// deletion publishes a tombstone carrying only the id, status and status
// timestamp.
type ActionBroadcast struct {
	ID             string                `json:"id"`
	Type           models.ActionType     `json:"type,omitempty"`
	TraineeID      string                `json:"traineeId,omitempty"`
	ReferenceInfo  *models.ReferenceInfo `json:"tisReferenceInfo,omitempty"`
	AvailableFrom  *models.Date          `json:"availableFrom,omitempty"`
	DueBy          *models.Date          `json:"dueBy,omitempty"`
	Completed      *time.Time            `json:"completed,omitempty"`
	Status         models.ActionStatus   `json:"status"`
	StatusDatetime time.Time             `json:"statusDatetime"`
}

// SnsAPI is the subset of the SNS client used by the publisher.
type SnsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SnsPublisher broadcasts action snapshots and tombstones to an SNS topic.
type SnsPublisher struct {
	client   SnsAPI
	topicArn string
	now      func() time.Time
}

// NewSnsPublisher creates a publisher for the given topic. FIFO topics are
// supported, the action id is used as the message group.
func NewSnsPublisher(client SnsAPI, topicArn string) *SnsPublisher {
	return &SnsPublisher{client: client, topicArn: topicArn, now: time.Now}
}

// PublishActionUpdate broadcasts a CURRENT snapshot for a created or updated
// action.
func (p *SnsPublisher) PublishActionUpdate(ctx context.Context, action models.Action) error {
	broadcast := ActionBroadcast{
		ID:             action.ID.Hex(),
		Type:           action.Type,
		TraineeID:      action.TraineeID,
		ReferenceInfo:  &action.ReferenceInfo,
		AvailableFrom:  action.AvailableFrom,
		DueBy:          action.DueBy,
		Completed:      action.Completed,
		Status:         models.StatusCurrent,
		StatusDatetime: p.now().UTC(),
	}
	return p.publish(ctx, broadcast)
}

// PublishActionDelete broadcasts a DELETED tombstone for a removed action.
func (p *SnsPublisher) PublishActionDelete(ctx context.Context, action models.Action) error {
	broadcast := ActionBroadcast{
		ID:             action.ID.Hex(),
		Status:         models.StatusDeleted,
		StatusDatetime: p.now().UTC(),
	}
	return p.publish(ctx, broadcast)
}

func (p *SnsPublisher) publish(ctx context.Context, broadcast ActionBroadcast) error {
	body, err := json.Marshal(broadcast)
	if err != nil {
		return fmt.Errorf("failed to marshal action broadcast: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicArn),
		Message:  aws.String(string(body)),
	}
	if strings.HasSuffix(p.topicArn, ".fifo") {
		input.MessageGroupId = aws.String(broadcast.ID)
		input.MessageDeduplicationId = aws.String(uuid.NewString())
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("failed to publish %s event for action %s: %w",
			broadcast.Status, broadcast.ID, err)
	}
	log.Printf("Published %s event for action %s to topic %s.",
		broadcast.Status, broadcast.ID, p.topicArn)
	return nil
}
