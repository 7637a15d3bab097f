package sns

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SMSSender sends SMS messages via AWS SNS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type sender struct {
	client publisher
}

// NewSender publishes through SNS in region, which may differ from the
// region of the other AWS clients since SMS is not offered everywhere.
func NewSender(awsCfg aws.Config, region string) SMSSender {
	return &sender{client: sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if region != "" {
			o.Region = region
		}
	})}
}

// SendSMS publishes a transactional text. OTP codes must not be dropped by
// the promotional quota, hence the SMSType attribute.
func (s *sender) SendSMS(ctx context.Context, to, message string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	if err != nil {
		slog.Error("sns publish failed", "err", err)
	}
	return err
}

// LogSender prints messages instead of sending them. Used when no SNS
// region is configured.
type LogSender struct{}

func (LogSender) SendSMS(_ context.Context, to, message string) error {
	slog.Info("sms (not sent)", "to", to, "message", message)
	return nil
}
