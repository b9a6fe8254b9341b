package external

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"notekeeper/internal/types"
)

// SESAPI is the slice of the SES v2 client the provider calls. Tests supply
// a capturing implementation.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClient delivers reminder emails through AWS SES v2. Credentials come
// from the ambient AWS config (IAM role in production, static keys against
// LocalStack). The SDK retries transport hiccups on its own; delivery-level
// retries belong to the delay store, so Send makes exactly one attempt.
type SESClient struct {
	api       SESAPI
	configSet string
}

// NewSESClient creates an SESClient from an AWS config. configSet optionally
// names an SES configuration set applied to every send.
func NewSESClient(awsCfg aws.Config, configSet string) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), configSet)
}

// NewSESClientWithAPI creates an SESClient on a pre-built SESAPI.
func NewSESClientWithAPI(api SESAPI, configSet string) *SESClient {
	return &SESClient{api: api, configSet: configSet}
}

// Send transmits one pre-rendered reminder email and returns the provider
// message id. The schedule id rides along as a message tag so a delivery in
// SES event logs can be traced back to its delay-store entry.
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	req := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(input.From.String()),
		Destination:      &sestypes.Destination{ToAddresses: []string{input.To}},
		Content:          &sestypes.EmailContent{Simple: simpleMessage(input)},
	}
	if s.configSet != "" {
		req.ConfigurationSetName = aws.String(s.configSet)
	}
	if input.ReferenceID != "" {
		req.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("ReferenceID"),
			Value: aws.String(input.ReferenceID),
		}}
	}

	out, err := s.api.SendEmail(ctx, req)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// simpleMessage assembles the Simple content block. Only the body variants
// actually present are attached; SES rejects empty content parts.
func simpleMessage(input types.SendInput) *sestypes.Message {
	utf8 := func(data string) *sestypes.Content {
		return &sestypes.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
	}
	msg := &sestypes.Message{
		Subject: utf8(input.Subject),
		Body:    &sestypes.Body{},
	}
	if input.BodyHTML != "" {
		msg.Body.Html = utf8(input.BodyHTML)
	}
	if input.BodyText != "" {
		msg.Body.Text = utf8(input.BodyText)
	}
	return msg
}

// mapSESError folds SES failures into the error taxonomy the dispatcher acts
// on: a rejected message is terminal for this recipient, while throttling
// and paused sending are retryable upstream conditions.
func mapSESError(err error) error {
	var (
		rejected  *sestypes.MessageRejected
		throttled *sestypes.TooManyRequestsException
		paused    *sestypes.SendingPausedException
	)
	switch {
	case errors.As(err, &rejected):
		return types.NewAppError(types.ErrCodeEmailBlocked, "recipient rejected by SES", err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SES send rate exceeded", err)
	case errors.As(err, &paused):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES sending is paused for the account", err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SES send failed", err)
	}
}

// Compile-time assertion that SESClient satisfies EmailProvider.
var _ EmailProvider = (*SESClient)(nil)
