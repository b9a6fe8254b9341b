package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/types"
)

// mockSES captures the SendEmail input and returns a canned result.
type mockSES struct {
	input  *sesv2.SendEmailInput
	output *sesv2.SendEmailOutput
	err    error
}

func (m *mockSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func TestSESClient_Send_BuildsRequest(t *testing.T) {
	api := &mockSES{output: &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}}
	client := NewSESClientWithAPI(api, "reminders")

	msgID, err := client.Send(context.Background(), types.SendInput{
		From:        types.EmailAddress{Name: "Notekeeper", Address: "reminders@example.com"},
		To:          "owner@example.com",
		Subject:     "Groceries",
		BodyHTML:    "<pre>milk</pre>",
		BodyText:    "milk",
		ReferenceID: "reminder-note_1-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", msgID)

	require.NotNil(t, api.input)
	assert.Equal(t, "Notekeeper <reminders@example.com>", *api.input.FromEmailAddress)
	assert.Equal(t, []string{"owner@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Groceries", *api.input.Content.Simple.Subject.Data)
	assert.Equal(t, "<pre>milk</pre>", *api.input.Content.Simple.Body.Html.Data)
	assert.Equal(t, "milk", *api.input.Content.Simple.Body.Text.Data)
	assert.Equal(t, "reminders", *api.input.ConfigurationSetName)

	require.Len(t, api.input.EmailTags, 1)
	assert.Equal(t, "ReferenceID", *api.input.EmailTags[0].Name)
	assert.Equal(t, "reminder-note_1-abc", *api.input.EmailTags[0].Value)
}

func TestSESClient_Send_BareFromAddressWithoutName(t *testing.T) {
	api := &mockSES{output: &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-2")}}
	client := NewSESClientWithAPI(api, "")

	_, err := client.Send(context.Background(), types.SendInput{
		From:    types.EmailAddress{Address: "reminders@example.com"},
		To:      "owner@example.com",
		Subject: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, "reminders@example.com", *api.input.FromEmailAddress)
	assert.Nil(t, api.input.ConfigurationSetName)
	assert.Empty(t, api.input.EmailTags)
}

func TestSESClient_Send_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		sesErr   error
		wantCode types.ErrorCode
	}{
		{
			name:     "message rejected maps to blocked",
			sesErr:   &sestypes.MessageRejected{Message: aws.String("address suppressed")},
			wantCode: types.ErrCodeEmailBlocked,
		},
		{
			name:     "throttled maps to rate limited",
			sesErr:   &sestypes.TooManyRequestsException{Message: aws.String("slow down")},
			wantCode: types.ErrCodeUpstreamRateLimited,
		},
		{
			name:     "sending paused maps to unavailable",
			sesErr:   &sestypes.SendingPausedException{Message: aws.String("account paused")},
			wantCode: types.ErrCodeUpstreamUnavailable,
		},
		{
			name:     "anything else maps to provider error",
			sesErr:   errors.New("tls handshake failed"),
			wantCode: types.ErrCodeUpstreamEmailProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockSES{err: tt.sesErr}
			client := NewSESClientWithAPI(api, "")

			_, err := client.Send(context.Background(), types.SendInput{
				From: types.EmailAddress{Address: "reminders@example.com"},
				To:   "owner@example.com",
			})
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}
