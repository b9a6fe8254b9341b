package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricNamespace is the default CloudWatch namespace for reminder dispatch
// metrics, used when no namespace is configured.
const MetricNamespace = "Notekeeper/Reminders"

// Result classifies a dispatch outcome for metrics purposes.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// Metrics records dispatch outcomes. Implementations must be safe for
// concurrent use; the dispatcher calls them from multiple workers.
type Metrics interface {
	// RecordDispatch emits one dispatch outcome.
	RecordDispatch(ctx context.Context, result Result)
	// RecordSendLatency records the time taken by a provider send attempt.
	RecordSendLatency(ctx context.Context, duration time.Duration)
	// RecordDispatchLag records the time between an entry's scheduled fire
	// instant and the moment a worker picked it up.
	RecordDispatchLag(ctx context.Context, lag time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by publishing to AWS CloudWatch.
//
// Metrics emitted:
//   - ReminderDispatch: Dims {Result} -- on every dispatch outcome
//   - ReminderSendLatency: no dims -- provider send duration
//   - ReminderDispatchLag: no dims -- fire-time to pickup delay
//
// Publish failures are logged and swallowed; metrics are never allowed to
// fail a delivery.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// Compile-time assertion that CloudWatchMetrics implements Metrics.
var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing into the given
// namespace. An empty namespace falls back to MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDispatch emits a ReminderDispatch metric with the Result dimension.
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, result Result) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("ReminderDispatch"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String("Result"),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record dispatch metric",
			"error", err.Error(),
			"result", string(result),
		)
	}
}

// RecordSendLatency emits the provider send duration in milliseconds.
func (m *CloudWatchMetrics) RecordSendLatency(ctx context.Context, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("ReminderSendLatency"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record send latency metric",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordDispatchLag emits the delay between the scheduled fire instant and
// worker pickup. This covers poll-interval slack plus any backlog.
func (m *CloudWatchMetrics) RecordDispatchLag(ctx context.Context, lag time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("ReminderDispatchLag"),
				Value:      aws.Float64(float64(lag.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record dispatch lag metric",
			"error", err.Error(),
			"lag_ms", lag.Milliseconds(),
		)
	}
}

// NopMetrics discards every observation. Used when CloudWatch is not
// configured, and in tests that don't assert on metrics.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) RecordDispatch(context.Context, Result)           {}
func (NopMetrics) RecordSendLatency(context.Context, time.Duration) {}
func (NopMetrics) RecordDispatchLag(context.Context, time.Duration) {}
