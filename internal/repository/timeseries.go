package repository

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"eldersafe-gateway/internal/config"
	"eldersafe-gateway/internal/models"
)

// SinkWriter 时序库写入能力（追加写，按读数类型派生measurement名）
type SinkWriter interface {
	WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) error
}

// SinkQuerier 时序库按时间范围查询能力（仅供只读面板API使用）
type SinkQuerier interface {
	QueryRange(ctx context.Context, measurement, field string, since time.Duration) ([]models.SeriesPoint, error)
}

// InfluxSink InfluxDB时序库仓库
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	logger   *zap.Logger
}

// NewInfluxSink 创建InfluxDB仓库
func NewInfluxSink(cfg *config.SinkConfig, logger *zap.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		logger:   logger,
	}
}

// WritePoint 写入一个数据点
func (s *InfluxSink) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) error {
	p := influxdb2.NewPoint(measurement, tags, fields, ts)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("failed to write point to measurement %s: %w", measurement, err)
	}
	return nil
}

// QueryRange 查询指定measurement/field在最近since时间窗内的点
func (s *InfluxSink) QueryRange(ctx context.Context, measurement, field string, since time.Duration) ([]models.SeriesPoint, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q and r._field == %q)
  |> sort(columns: ["_time"])`,
		s.bucket, since.String(), measurement, field)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement %s: %w", measurement, err)
	}

	var points []models.SeriesPoint
	for result.Next() {
		record := result.Record()
		points = append(points, models.SeriesPoint{
			Time:  record.Time(),
			Value: record.Value(),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("error iterating query result: %w", result.Err())
	}

	return points, nil
}

// Close 关闭底层客户端
func (s *InfluxSink) Close() {
	s.client.Close()
}
