package api

import (
	"strings"

	"broker/pkg/apperror"
)

// RateLimitCost charges one unit per problem in the batch.
func (r *SolveBatchRequest) RateLimitCost() int {
	return len(r.Problems)
}

func (r *GetCalculationRequest) Validate() error {
	return requireID(r.ID)
}

func (r *DeleteCalculationRequest) Validate() error {
	return requireID(r.ID)
}

func (r *GenerateReportRequest) Validate() error {
	if r.CalculationID == "" && r.Problem == nil {
		return apperror.NewWithField(apperror.CodeInvalidArgument,
			"either calculation_id or problem is required", "calculation_id")
	}
	if r.CalculationID != "" && r.Problem != nil {
		return apperror.NewWithField(apperror.CodeInvalidArgument,
			"calculation_id and problem are mutually exclusive", "problem")
	}
	return nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.NewWithField(apperror.CodeInvalidArgument, "id is required", "id")
	}
	return nil
}
