package metrics

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cryptonorm/config"
	"cryptonorm/logger"
)

type cloudWatchState struct {
	client        *cloudwatch.Client
	namespace     string
	dashboardName string
	region        string
}

var cwState atomic.Pointer[cloudWatchState]

var (
	// cloudWatchPublishInterval is the minimum gap between two publishes of
	// the same metric series.
	cloudWatchPublishInterval = time.Minute
	timeNow                   = time.Now
	publishMetricsFunc        = publishMetrics

	publishTimesMu sync.Mutex
	publishTimes   = map[string]time.Time{}
)

func init() {
	cwState.Store(&cloudWatchState{
		namespace:     "Cryptonorm",
		dashboardName: "Cryptonorm",
	})
}

// InitCloudWatch initialises the CloudWatch client. Static credentials are used
// when both keys are configured, otherwise the default AWS credential chain.
// When the client cannot be created the function logs a warning and leaves
// publishing disabled.
func InitCloudWatch(ctx context.Context, cfg config.CloudWatchConfig) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := *cwState.Load()
	state.client = cloudwatch.NewFromConfig(awsCfg)
	if cfg.Namespace != "" {
		state.namespace = cfg.Namespace
	}
	if cfg.Dashboard != "" {
		state.dashboardName = cfg.Dashboard
	}
	state.region = awsCfg.Region
	if state.region == "" {
		state.region = region
	}
	if cfg.PublishInterval > 0 {
		cloudWatchPublishInterval = cfg.PublishInterval
	}
	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")

	if err := CreateDashboard(ctx); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

// EmitMetric logs the metric locally, dispatches it to registered handlers and
// publishes it to CloudWatch when configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	event, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := toFloat64(event.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": event.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}
	publishMetricDatum(event, numericValue)
}

type dashboardWidget struct {
	Type       string              `json:"type"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Properties dashboardProperties `json:"properties"`
}

type dashboardProperties struct {
	Metrics [][]string `json:"metrics"`
	Period  int        `json:"period"`
	Stat    string     `json:"stat"`
	Region  string     `json:"region,omitempty"`
	Title   string     `json:"title"`
}

// dashboardBody renders the default dashboard for the namespace.
func dashboardBody(namespace, region string) (string, error) {
	widget := func(title, stat string, names ...string) dashboardWidget {
		metrics := make([][]string, 0, len(names))
		for _, n := range names {
			metrics = append(metrics, []string{namespace, n})
		}
		return dashboardWidget{
			Type:   "metric",
			Width:  12,
			Height: 6,
			Properties: dashboardProperties{
				Metrics: metrics,
				Period:  60,
				Stat:    stat,
				Region:  region,
				Title:   title,
			},
		}
	}
	body := struct {
		Widgets []dashboardWidget `json:"widgets"`
	}{
		Widgets: []dashboardWidget{
			widget("Events", "Sum", MetricEventsDelivered),
			widget("Transform errors", "Sum", MetricTransformErrors, MetricUnidentifiable),
			widget("Connection groups", "Sum", MetricReconnects, MetricGroupFailed),
			widget("Runtime", "Average", "Goroutines", "HeapMB"),
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateDashboard puts the default dashboard. It is a no-op until
// InitCloudWatch succeeded.
func CreateDashboard(ctx context.Context) error {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return nil
	}

	body, err := dashboardBody(state.namespace, state.region)
	if err != nil {
		return err
	}
	if _, err := state.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(state.dashboardName),
		DashboardBody: aws.String(body),
	}); err != nil {
		return err
	}

	logger.GetLogger().WithComponent("cloudwatch").Debug("updated CloudWatch dashboard")
	return nil
}

// PublishReport forwards a logger runtime report to CloudWatch. It matches
// logger.ReportSink.
func PublishReport(ctx context.Context, fields logger.Fields) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	var data []cwtypes.MetricDatum
	for _, m := range []struct {
		name  string
		field string
		unit  cwtypes.StandardUnit
	}{
		{"Errors", "errors", cwtypes.StandardUnitCount},
		{"Warns", "warns", cwtypes.StandardUnitCount},
		{"Goroutines", "goroutines", cwtypes.StandardUnitCount},
		{"HeapMB", "heap_mb", cwtypes.StandardUnitMegabytes},
	} {
		if v, ok := toFloat64(fields[m.field]); ok {
			data = append(data, cwtypes.MetricDatum{MetricName: aws.String(m.name), Unit: m.unit, Value: aws.Float64(v)})
		}
	}

	if channels, ok := fields["channels"].(map[string]map[string]int64); ok {
		for name, stats := range channels {
			dims := []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}}
			data = append(data,
				cwtypes.MetricDatum{MetricName: aws.String("ChannelMessages"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(stats["messages"]))},
				cwtypes.MetricDatum{MetricName: aws.String("ChannelBytes"), Unit: cwtypes.StandardUnitBytes, Dimensions: dims, Value: aws.Float64(float64(stats["bytes"]))},
			)
		}
	}

	publishMetricsFunc(ctx, state, data)
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := metric.Fields["unit"]; ok {
		if unitStr, ok := rawUnit.(string); ok {
			if parsedUnit, found := metricUnitFromString(unitStr); found {
				unit = parsedUnit
			} else {
				logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metric.Name, "unit": unitStr}).Debug("unsupported metric unit; defaulting to Count")
			}
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	keyParts := []string{metric.Component, metric.Name}
	for k, v := range metric.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
			keyParts = append(keyParts, k+"="+s)
		}
	}

	if !allowPublish(strings.Join(keyParts, "|")) {
		return
	}

	ts := metric.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}
	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Timestamp:  aws.Time(ts),
		Unit:       unit,
		Value:      aws.Float64(value),
	}}
	publishMetricsFunc(context.Background(), state, data)
}

// allowPublish reports whether the series identified by key may be published
// now, recording the publish when it may.
func allowPublish(key string) bool {
	now := timeNow()
	publishTimesMu.Lock()
	defer publishTimesMu.Unlock()
	if last, ok := publishTimes[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		return false
	}
	publishTimes[key] = now
	return true
}

func resetMetricPublishTimes() {
	publishTimesMu.Lock()
	publishTimes = map[string]time.Time{}
	publishTimesMu.Unlock()
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil {
		return
	}
	if len(data) == 0 {
		logger.GetLogger().WithComponent("cloudwatch").Debug("no metric data to publish")
		return
	}

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}

	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metrics": strings.Join(names, ",")}).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
