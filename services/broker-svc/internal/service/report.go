package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"broker/pkg/apperror"
	"broker/pkg/logger"
	"broker/pkg/report"
	"broker/pkg/telemetry"
)

// Report строит документ по сохранённому расчёту (CalculationID) или
// решает переданную задачу и строит документ по результату
func (s *BrokerService) Report(ctx context.Context, req ReportRequest) (*ReportResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokerService.Report",
		telemetry.WithAttributes(attribute.String("calculation.id", req.CalculationID)))
	defer span.End()

	raw := req.Format
	if raw == "" {
		raw = s.opts.DefaultFormat
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		return nil, err
	}

	data, err := s.reportData(ctx, req)
	if err != nil {
		s.recordReport(format, false)
		telemetry.SetError(ctx, err)
		return nil, err
	}

	start := time.Now()
	content, g, err := s.reports.Generate(ctx, format, data)
	if err != nil {
		s.recordReport(format, false)
		telemetry.SetError(ctx, err)
		logger.FromContext(ctx).Warn("Report generation failed", "format", format, "error", err)
		return nil, err
	}
	s.recordReport(format, true)
	telemetry.SetAttributes(ctx, telemetry.ReportAttributes(string(format), len(content))...)

	base := "plan"
	if data.ID != "" {
		base = data.ID
	}

	logger.FromContext(ctx).Info("Report generated",
		"format", format,
		"id", data.ID,
		"bytes", len(content),
		"duration", time.Since(start),
	)
	return &ReportResponse{
		Content:     content,
		ContentType: g.ContentType(),
		Filename:    "broker-" + base + "." + g.Extension(),
		Format:      format,
	}, nil
}

func (s *BrokerService) reportData(ctx context.Context, req ReportRequest) (*report.Data, error) {
	opts := s.opts.Report
	if req.Title != "" {
		opts.Title = req.Title
	}

	switch {
	case req.CalculationID != "":
		calc, err := s.GetCalculation(ctx, req.CalculationID)
		if err != nil {
			return nil, err
		}
		data, err := report.NewData(calc.Problem, calc.Result, opts)
		if err != nil {
			return nil, err
		}
		data.ID = calc.ID
		data.Name = calc.Name
		return data, nil

	case req.Problem != nil:
		resp, err := s.Solve(ctx, SolveRequest{Problem: req.Problem})
		if err != nil {
			return nil, err
		}
		data, err := report.NewData(req.Problem, resp.Result, opts)
		if err != nil {
			return nil, err
		}
		data.ID = resp.ID
		data.Analysis = resp.Analysis
		return data, nil
	}

	return nil, apperror.NewWithField(apperror.CodeInvalidArgument,
		"either calculation_id or problem is required", "calculation_id")
}

func (s *BrokerService) recordReport(format report.Format, success bool) {
	if s.metrics != nil {
		s.metrics.RecordReport(string(format), success)
	}
}
