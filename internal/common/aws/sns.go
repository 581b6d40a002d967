// internal/common/aws/sns.go
package aws

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used for publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher sends outbound events to an SNS topic. The record key travels
// as the "key" message attribute and, on FIFO topics, as the message group so
// events for one person stay ordered.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
	fifo     bool
}

func NewSNSPublisher(ctx context.Context, region, topicARN string) (*SNSPublisher, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSPublisherWithClient(sns.NewFromConfig(cfg), topicARN), nil
}

func NewSNSPublisherWithClient(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		fifo:     strings.HasSuffix(topicARN, ".fifo"),
	}
}

func (p *SNSPublisher) Publish(ctx context.Context, key string, value []byte) error {
	input := &sns.PublishInput{
		TopicArn: awssdk.String(p.topicARN),
		Message:  awssdk.String(string(value)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"key": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(key),
			},
		},
	}
	if p.fifo {
		sum := sha256.Sum256(value)
		input.MessageGroupId = awssdk.String(key)
		input.MessageDeduplicationId = awssdk.String(hex.EncodeToString(sum[:]))
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
