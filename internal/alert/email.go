package alert

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
)

// SendEmailAPI is the subset of the SES v2 client used here.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailDispatcher mails the operator recipients through Amazon SES.
type EmailDispatcher struct {
	client     SendEmailAPI
	sender     string
	recipients []string
	log        zerolog.Logger
}

func NewEmailDispatcher(client SendEmailAPI, sender string, recipients []string, log zerolog.Logger) *EmailDispatcher {
	return &EmailDispatcher{
		client:     client,
		sender:     sender,
		recipients: recipients,
		log:        log,
	}
}

func (d *EmailDispatcher) Send(ctx context.Context, a Alert) error {
	out, err := d.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(d.sender),
		Destination:      &types.Destination{ToAddresses: d.recipients},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject(a)), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(plainText(a)), Charset: aws.String("UTF-8")},
					Html: &types.Content{Data: aws.String(htmlBody(a)), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: email: %v", ErrDispatch, err)
	}

	d.log.Info().
		Str("plate", a.Plate).
		Str("message_id", aws.ToString(out.MessageId)).
		Int("recipients", len(d.recipients)).
		Msg("violation email sent")
	return nil
}
