package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"agroclima/internal/types"
)

// hypertableName is the TimescaleDB hypertable holding observation history.
const hypertableName = "weather_timeseries"

// S3PutClient abstracts the S3 PutObject operation for archive export.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RetentionManager owns the hypertable lifecycle: creation, retention and
// compression policies, manual chunk maintenance, and cold-storage archival.
// Every Ensure* method consults the timescaledb_information catalogs first,
// so calling them on every startup is a safe no-op once configured.
type RetentionManager struct {
	db       DBTX
	archiver S3PutClient
	bucket   string
	logger   *slog.Logger
}

// NewRetentionManager creates a retention manager. archiver and bucket may be
// zero when archival is disabled; ArchiveOlderThan then refuses to run.
func NewRetentionManager(db DBTX, archiver S3PutClient, bucket string, logger *slog.Logger) *RetentionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionManager{db: db, archiver: archiver, bucket: bucket, logger: logger}
}

// EnsureHypertable converts weather_timeseries into a hypertable with 1-day
// chunks. create_hypertable's if_not_exists flag makes reruns no-ops.
func (m *RetentionManager) EnsureHypertable(ctx context.Context) error {
	_, err := m.db.Exec(ctx, `
		SELECT create_hypertable('weather_timeseries', 'timestamp',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE)`)
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "ensuring hypertable",
			Err:     err,
		}
	}
	return nil
}

// EnsureRetentionPolicy installs a drop-chunks policy keeping retainDays of
// history. An existing retention job for the table is left untouched.
func (m *RetentionManager) EnsureRetentionPolicy(ctx context.Context, retainDays int) error {
	exists, err := m.jobExists(ctx, "policy_retention")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = m.db.Exec(ctx, fmt.Sprintf(
		`SELECT add_retention_policy('weather_timeseries', INTERVAL '%d days')`, retainDays))
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "adding retention policy",
			Err:     err,
		}
	}
	m.logger.InfoContext(ctx, "retention policy installed", "retain_days", retainDays)
	return nil
}

// EnsureCompressionPolicy enables columnar compression segmented by location
// and installs a compression job for chunks older than compressAfterDays.
func (m *RetentionManager) EnsureCompressionPolicy(ctx context.Context, compressAfterDays int) error {
	compressed, err := m.compressionEnabled(ctx)
	if err != nil {
		return err
	}
	if !compressed {
		_, err = m.db.Exec(ctx, `
			ALTER TABLE weather_timeseries SET (
				timescaledb.compress,
				timescaledb.compress_segmentby = 'latitude, longitude',
				timescaledb.compress_orderby = 'timestamp DESC')`)
		if err != nil {
			return &types.AppError{
				Code:    types.ErrCodeInternalTimeseries,
				Message: "enabling compression",
				Err:     err,
			}
		}
	}

	exists, err := m.jobExists(ctx, "policy_compression")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = m.db.Exec(ctx, fmt.Sprintf(
		`SELECT add_compression_policy('weather_timeseries', INTERVAL '%d days')`, compressAfterDays))
	if err != nil {
		return &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "adding compression policy",
			Err:     err,
		}
	}
	m.logger.InfoContext(ctx, "compression policy installed", "compress_after_days", compressAfterDays)
	return nil
}

// jobExists checks the timescaledb_information.jobs catalog for a policy of
// the given type bound to the hypertable.
func (m *RetentionManager) jobExists(ctx context.Context, procName string) (bool, error) {
	var n int
	err := m.db.QueryRow(ctx, `
		SELECT count(*) FROM timescaledb_information.jobs
		WHERE proc_name = $1 AND hypertable_name = $2`,
		procName, hypertableName).Scan(&n)
	if err != nil {
		return false, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "checking policy jobs",
			Err:     err,
		}
	}
	return n > 0, nil
}

// compressionEnabled checks whether the hypertable already has compression
// settings applied.
func (m *RetentionManager) compressionEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := m.db.QueryRow(ctx, `
		SELECT compression_enabled FROM timescaledb_information.hypertables
		WHERE hypertable_name = $1`, hypertableName).Scan(&enabled)
	if err != nil {
		return false, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "checking compression state",
			Err:     err,
		}
	}
	return enabled, nil
}

// CompressChunksOlderThan compresses every uncompressed chunk whose range
// ends before the cutoff and returns how many were compressed.
func (m *RetentionManager) CompressChunksOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := m.db.Query(ctx, `
		SELECT compress_chunk(format('%I.%I', chunk_schema, chunk_name)::regclass)
		FROM timescaledb_information.chunks
		WHERE hypertable_name = $1
		  AND NOT is_compressed
		  AND range_end < $2`,
		hypertableName, cutoff)
	if err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "compressing chunks",
			Err:     err,
		}
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return n, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "iterating compressed chunks",
			Err:     err,
		}
	}
	return n, nil
}

// DeleteOlderThan drops whole chunks before the cutoff and returns how many
// were dropped. Chunk-wise deletion avoids row-by-row vacuum churn.
func (m *RetentionManager) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := m.db.Query(ctx,
		`SELECT drop_chunks('weather_timeseries', older_than => $1::timestamptz)`, cutoff)
	if err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "dropping chunks",
			Err:     err,
		}
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return n, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "iterating dropped chunks",
			Err:     err,
		}
	}
	return n, nil
}

// Chunks lists the hypertable's chunks for maintenance reporting.
func (m *RetentionManager) Chunks(ctx context.Context) ([]*types.ChunkInfo, error) {
	rows, err := m.db.Query(ctx, `
		SELECT chunk_name, range_start, range_end, is_compressed
		FROM timescaledb_information.chunks
		WHERE hypertable_name = $1
		ORDER BY range_start`, hypertableName)
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "listing chunks",
			Err:     err,
		}
	}
	defer rows.Close()

	var out []*types.ChunkInfo
	for rows.Next() {
		var c types.ChunkInfo
		if err := rows.Scan(&c.ChunkName, &c.RangeStart, &c.RangeEnd, &c.IsCompressed); err != nil {
			return nil, &types.AppError{
				Code:    types.ErrCodeInternalTimeseries,
				Message: "scanning chunk row",
				Err:     err,
			}
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "iterating chunk rows",
			Err:     err,
		}
	}
	return out, nil
}

// ArchiveOlderThan exports rows older than the cutoff to the archive bucket
// as zstd-compressed JSON lines, then drops the source chunks. Returns the
// number of rows archived. The export happens before deletion so a failed
// upload never loses data.
func (m *RetentionManager) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if m.archiver == nil || m.bucket == "" {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "archival not configured",
		}
	}

	rows, err := m.db.Query(ctx, `
		SELECT `+tsColumns+`
		FROM weather_timeseries
		WHERE timestamp < $1
		ORDER BY timestamp`, cutoff)
	if err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "querying rows for archival",
			Err:     err,
		}
	}
	defer rows.Close()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "creating archive encoder",
			Err:     err,
		}
	}

	enc := json.NewEncoder(zw)
	n := 0
	for rows.Next() {
		var o types.WeatherObservation
		err := rows.Scan(
			&o.Timestamp, &o.Latitude, &o.Longitude,
			&o.Temperature, &o.Humidity, &o.Precipitation,
			&o.WindSpeed, &o.WindDirection, &o.Pressure, &o.SoilMoisture,
		)
		if err != nil {
			zw.Close()
			return 0, &types.AppError{
				Code:    types.ErrCodeInternalTimeseries,
				Message: "scanning row for archival",
				Err:     err,
			}
		}
		if err := enc.Encode(&o); err != nil {
			zw.Close()
			return 0, &types.AppError{
				Code:    types.ErrCodeInternalTimeseries,
				Message: "encoding archive row",
				Err:     err,
			}
		}
		n++
	}
	if err := rows.Err(); err != nil {
		zw.Close()
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "iterating rows for archival",
			Err:     err,
		}
	}
	if err := zw.Close(); err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "finalizing archive",
			Err:     err,
		}
	}

	if n == 0 {
		return 0, nil
	}

	key := fmt.Sprintf("weather_timeseries/%s.jsonl.zst", cutoff.UTC().Format("20060102T150405Z"))
	_, err = m.archiver.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return 0, &types.AppError{
			Code:    types.ErrCodeInternalTimeseries,
			Message: "uploading archive object",
			Err:     err,
		}
	}

	if _, err := m.DeleteOlderThan(ctx, cutoff); err != nil {
		return n, err
	}

	m.logger.InfoContext(ctx, "timeseries archived",
		"rows", n,
		"key", key,
		"cutoff", cutoff,
	)
	return n, nil
}
