// Package api describes the broker Connect service: procedure names, the
// JSON messages exchanged by server and client, and the codec carrying them.
package api

import (
	"time"

	"broker/pkg/broker"
)

// ServiceName is the fully qualified Connect service name.
const ServiceName = "broker.v1.BrokerService"

// Procedures served under ServiceName.
const (
	SolveProcedure             = "/" + ServiceName + "/Solve"
	SolveBatchProcedure        = "/" + ServiceName + "/SolveBatch"
	GetCalculationProcedure    = "/" + ServiceName + "/GetCalculation"
	ListCalculationsProcedure  = "/" + ServiceName + "/ListCalculations"
	DeleteCalculationProcedure = "/" + ServiceName + "/DeleteCalculation"
	GenerateReportProcedure    = "/" + ServiceName + "/GenerateReport"
)

// ServicePath is the mux prefix for every procedure.
const ServicePath = "/" + ServiceName + "/"

// Procedures lists every procedure in declaration order.
func Procedures() []string {
	return []string{
		SolveProcedure,
		SolveBatchProcedure,
		GetCalculationProcedure,
		ListCalculationsProcedure,
		DeleteCalculationProcedure,
		GenerateReportProcedure,
	}
}

// SolveRequest asks for one problem to be solved.
type SolveRequest struct {
	Name    string          `json:"name,omitempty"`
	Tags    []string        `json:"tags,omitempty"`
	Problem *broker.Problem `json:"problem"`
	// Save stores the calculation even when persistence is off by default.
	Save bool `json:"save,omitempty"`
}

// SolveResponse carries the plan. ID is empty when nothing was stored.
type SolveResponse struct {
	ID       string           `json:"id,omitempty"`
	Result   *broker.Result   `json:"result"`
	Analysis *broker.Analysis `json:"analysis"`
	Cached   bool             `json:"cached"`
	Warnings []string         `json:"warnings,omitempty"`
}

type SolveBatchRequest struct {
	Problems []SolveRequest `json:"problems"`
}

// Error is a per-item failure inside a batch.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// BatchItem holds exactly one of Response and Error.
type BatchItem struct {
	Index    int            `json:"index"`
	Response *SolveResponse `json:"response,omitempty"`
	Error    *Error         `json:"error,omitempty"`
}

type SolveBatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

type GetCalculationRequest struct {
	ID string `json:"id"`
}

// Calculation is a stored calculation with its decoded problem and result.
type Calculation struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner,omitempty"`
	Name      string           `json:"name,omitempty"`
	Tags      []string         `json:"tags"`
	Problem   *broker.Problem  `json:"problem"`
	Result    *broker.Result   `json:"result"`
	Analysis  *broker.Analysis `json:"analysis"`
	CreatedAt time.Time        `json:"created_at"`
}

type ListCalculationsRequest struct {
	Tags   []string `json:"tags,omitempty"`
	Limit  int      `json:"limit,omitempty"`
	Offset int      `json:"offset,omitempty"`
}

// CalculationSummary is a history row without problem and result.
type CalculationSummary struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner,omitempty"`
	Name        string         `json:"name,omitempty"`
	Tags        []string       `json:"tags"`
	Suppliers   int            `json:"suppliers"`
	Customers   int            `json:"customers"`
	Summary     broker.Summary `json:"summary"`
	Iterations  int            `json:"iterations"`
	BalanceKind string         `json:"balance_kind"`
	DurationMs  float64        `json:"duration_ms"`
	CreatedAt   time.Time      `json:"created_at"`
}

type ListCalculationsResponse struct {
	Items []*CalculationSummary `json:"items"`
	Total int64                 `json:"total"`
}

type DeleteCalculationRequest struct {
	ID string `json:"id"`
}

type DeleteCalculationResponse struct {
	Deleted bool `json:"deleted"`
}

// GenerateReportRequest builds a report for a stored calculation
// (CalculationID) or for a problem solved on the fly.
type GenerateReportRequest struct {
	CalculationID string          `json:"calculation_id,omitempty"`
	Problem       *broker.Problem `json:"problem,omitempty"`
	Format        string          `json:"format,omitempty"`
	Title         string          `json:"title,omitempty"`
}

type GenerateReportResponse struct {
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Format      string `json:"format"`
}
