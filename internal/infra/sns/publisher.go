// Package sns mirrors delivered notifications to an AWS SNS topic so other
// systems can consume payment outcomes without polling the chat.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/vietddude/somicard/internal/infra/notify"
)

// Config selects the topic. An empty TopicARN disables the mirror.
type Config struct {
	TopicARN string `yaml:"topic_arn"`
	Region   string `yaml:"region"`
}

// API is the part of the SNS client the publisher uses.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher implements notify.Mirror.
type Publisher struct {
	client   API
	topicARN string
}

var _ notify.Mirror = (*Publisher)(nil)

// NewPublisher loads AWS credentials from the default chain.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewFromClient(sns.NewFromConfig(awsCfg), cfg.TopicARN), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client API, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// Publish sends body as the message, with kind as a message attribute for
// subscription filters.
func (p *Publisher) Publish(ctx context.Context, kind notify.Kind, body []byte) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(kind)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
