package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCloudWatch captures every PutMetricData call.
type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchMetrics_UsesConfiguredNamespace(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewCloudWatchMetrics(cw, "Staging/Reminders", nil)

	m.RecordDispatch(context.Background(), ResultSuccess)
	m.RecordSendLatency(context.Background(), 120*time.Millisecond)
	m.RecordDispatchLag(context.Background(), 3*time.Second)

	require.Len(t, cw.inputs, 3)
	for _, input := range cw.inputs {
		assert.Equal(t, "Staging/Reminders", *input.Namespace)
	}
}

func TestCloudWatchMetrics_EmptyNamespaceFallsBackToDefault(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewCloudWatchMetrics(cw, "", nil)

	m.RecordDispatch(context.Background(), ResultFailed)

	require.Len(t, cw.inputs, 1)
	assert.Equal(t, MetricNamespace, *cw.inputs[0].Namespace)
}

func TestCloudWatchMetrics_RecordDispatch_CarriesResultDimension(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewCloudWatchMetrics(cw, "", nil)

	m.RecordDispatch(context.Background(), ResultSkipped)

	require.Len(t, cw.inputs, 1)
	data := cw.inputs[0].MetricData
	require.Len(t, data, 1)
	assert.Equal(t, "ReminderDispatch", *data[0].MetricName)
	assert.Equal(t, cwtypes.StandardUnitCount, data[0].Unit)
	require.Len(t, data[0].Dimensions, 1)
	assert.Equal(t, "Result", *data[0].Dimensions[0].Name)
	assert.Equal(t, "skipped", *data[0].Dimensions[0].Value)
}

func TestCloudWatchMetrics_PublishFailureIsSwallowed(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchMetrics(cw, "", nil)

	// Must not panic or propagate: metrics never fail a delivery.
	m.RecordDispatch(context.Background(), ResultSuccess)
	m.RecordSendLatency(context.Background(), time.Second)
	m.RecordDispatchLag(context.Background(), time.Second)

	assert.Len(t, cw.inputs, 3)
}
