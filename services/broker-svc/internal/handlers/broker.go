package handlers

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"broker/pkg/api"
	"broker/pkg/apperror"
	"broker/services/broker-svc/internal/service"
)

// BrokerHandler реализует процедуры broker.v1.BrokerService поверх сервиса
type BrokerHandler struct {
	svc *service.BrokerService
}

// NewBrokerHandler создаёт handler
func NewBrokerHandler(svc *service.BrokerService) *BrokerHandler {
	return &BrokerHandler{svc: svc}
}

// Register регистрирует все процедуры в mux. Кодек JSON добавляется всегда.
func (h *BrokerHandler) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append(opts, connect.WithCodec(api.Codec{}))

	mux.Handle(api.SolveProcedure, connect.NewUnaryHandler(api.SolveProcedure, h.Solve, opts...))
	mux.Handle(api.SolveBatchProcedure, connect.NewUnaryHandler(api.SolveBatchProcedure, h.SolveBatch, opts...))
	mux.Handle(api.GetCalculationProcedure, connect.NewUnaryHandler(api.GetCalculationProcedure, h.GetCalculation, opts...))
	mux.Handle(api.ListCalculationsProcedure, connect.NewUnaryHandler(api.ListCalculationsProcedure, h.ListCalculations, opts...))
	mux.Handle(api.DeleteCalculationProcedure, connect.NewUnaryHandler(api.DeleteCalculationProcedure, h.DeleteCalculation, opts...))
	mux.Handle(api.GenerateReportProcedure, connect.NewUnaryHandler(api.GenerateReportProcedure, h.GenerateReport, opts...))
}

func (h *BrokerHandler) Solve(
	ctx context.Context,
	req *connect.Request[api.SolveRequest],
) (*connect.Response[api.SolveResponse], error) {
	resp, err := h.svc.Solve(ctx, *req.Msg)
	if err != nil {
		return nil, apperror.ToConnect(err)
	}
	return connect.NewResponse(resp), nil
}

func (h *BrokerHandler) SolveBatch(
	ctx context.Context,
	req *connect.Request[api.SolveBatchRequest],
) (*connect.Response[api.SolveBatchResponse], error) {
	items, err := h.svc.SolveBatch(ctx, req.Msg.Problems)
	if err != nil {
		return nil, apperror.ToConnect(err)
	}

	out := &api.SolveBatchResponse{Items: make([]api.BatchItem, len(items))}
	for i, it := range items {
		out.Items[i] = api.BatchItem{Index: it.Index, Response: it.Response}
		if it.Error != nil {
			out.Items[i].Error = convertError(it.Error)
			out.Failed++
		} else {
			out.Succeeded++
		}
	}
	return connect.NewResponse(out), nil
}

func (h *BrokerHandler) GetCalculation(
	ctx context.Context,
	req *connect.Request[api.GetCalculationRequest],
) (*connect.Response[api.Calculation], error) {
	calc, err := h.svc.GetCalculation(ctx, req.Msg.ID)
	if err != nil {
		return nil, apperror.ToConnect(err)
	}
	return connect.NewResponse(calc), nil
}

func (h *BrokerHandler) ListCalculations(
	ctx context.Context,
	req *connect.Request[api.ListCalculationsRequest],
) (*connect.Response[api.ListCalculationsResponse], error) {
	resp, err := h.svc.ListCalculations(ctx, *req.Msg)
	if err != nil {
		return nil, apperror.ToConnect(err)
	}
	return connect.NewResponse(resp), nil
}

func (h *BrokerHandler) DeleteCalculation(
	ctx context.Context,
	req *connect.Request[api.DeleteCalculationRequest],
) (*connect.Response[api.DeleteCalculationResponse], error) {
	if err := h.svc.DeleteCalculation(ctx, req.Msg.ID); err != nil {
		return nil, apperror.ToConnect(err)
	}
	return connect.NewResponse(&api.DeleteCalculationResponse{Deleted: true}), nil
}

func (h *BrokerHandler) GenerateReport(
	ctx context.Context,
	req *connect.Request[api.GenerateReportRequest],
) (*connect.Response[api.GenerateReportResponse], error) {
	rep, err := h.svc.Report(ctx, *req.Msg)
	if err != nil {
		return nil, apperror.ToConnect(err)
	}
	return connect.NewResponse(&api.GenerateReportResponse{
		Content:     rep.Content,
		ContentType: rep.ContentType,
		Filename:    rep.Filename,
		Format:      string(rep.Format),
	}), nil
}

func convertError(err error) *api.Error {
	appErr, ok := apperror.As(err)
	if !ok {
		return &api.Error{Code: string(apperror.CodeInternal), Message: err.Error()}
	}
	return &api.Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Field:   appErr.Field,
	}
}
