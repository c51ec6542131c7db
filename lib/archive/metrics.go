package archive

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pipelineMetrics holds the optional otel instruments recorded by Extract,
// wired the same way lib/volumes/metrics.go wires volume metrics in the
// teacher repo: constructed once per call, nil-safe, updated inline in the
// hot path.
type pipelineMetrics struct {
	extractions   metric.Int64Counter
	filesWritten  metric.Int64Counter
	bytesWritten  metric.Int64Counter
	quotaRejected metric.Int64Counter
}

func newMetrics(meter metric.Meter) *pipelineMetrics {
	if meter == nil {
		return nil
	}

	extractions, err := meter.Int64Counter("archiveguard_extractions_total",
		metric.WithDescription("Number of Extract calls, by outcome"))
	if err != nil {
		return nil
	}
	filesWritten, err := meter.Int64Counter("archiveguard_files_extracted_total",
		metric.WithDescription("Number of files written across all extractions"))
	if err != nil {
		return nil
	}
	bytesWritten, err := meter.Int64Counter("archiveguard_bytes_written_total",
		metric.WithDescription("Uncompressed bytes written across all extractions"),
		metric.WithUnit("By"))
	if err != nil {
		return nil
	}
	quotaRejected, err := meter.Int64Counter("archiveguard_quota_rejections_total",
		metric.WithDescription("Number of extractions aborted by a reader, validation or write error"))
	if err != nil {
		return nil
	}

	return &pipelineMetrics{
		extractions:   extractions,
		filesWritten:  filesWritten,
		bytesWritten:  bytesWritten,
		quotaRejected: quotaRejected,
	}
}

func (m *pipelineMetrics) recordExtraction(report *ExtractionReport, success bool) {
	if m == nil {
		return
	}
	ctx := context.Background()
	status := "ok"
	if !success {
		status = "rejected"
		m.quotaRejected.Add(ctx, 1)
	}
	m.extractions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.filesWritten.Add(ctx, int64(report.FilesExtracted))
	m.bytesWritten.Add(ctx, report.BytesWritten)
}
