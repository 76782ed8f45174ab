// Package validation проверяет задачи брокера до запуска решателя.
//
// Ядро проверяет только согласованность размерностей. Здесь
// дополнительно отсекаются отрицательные значения, пустые и нулевые
// задачи и слишком большие размеры.
package validation

import (
	"fmt"

	"broker/pkg/apperror"
	"broker/pkg/broker"
)

// MaxValue верхняя граница одного значения. Переполнение сводных сумм
// проверяется отдельно, через broker.Problem.CheckMagnitude
const MaxValue int64 = 1_000_000_000

// Limits ограничения размера задачи
type Limits struct {
	MaxNodes int // предел поставщиков и покупателей по отдельности, 0 без ограничения
}

// ValidateProblem собирает все ошибки и предупреждения задачи
func ValidateProblem(p *broker.Problem, limits Limits) *apperror.ValidationErrors {
	v := apperror.NewValidationErrors()

	if p == nil {
		v.Add(apperror.ErrNilProblem)
		return v
	}

	m, n := len(p.Supply), len(p.Demand)
	if m == 0 {
		v.AddErrorWithField(apperror.CodeEmptyProblem, "no suppliers", "supply")
	}
	if n == 0 {
		v.AddErrorWithField(apperror.CodeEmptyProblem, "no customers", "demand")
	}
	if v.HasErrors() {
		return v
	}

	if limits.MaxNodes > 0 {
		if m > limits.MaxNodes {
			v.AddErrorWithField(apperror.CodeProblemTooLarge,
				fmt.Sprintf("%d suppliers exceeds the limit of %d", m, limits.MaxNodes), "supply")
		}
		if n > limits.MaxNodes {
			v.AddErrorWithField(apperror.CodeProblemTooLarge,
				fmt.Sprintf("%d customers exceeds the limit of %d", n, limits.MaxNodes), "demand")
		}
		if v.HasErrors() {
			return v
		}
	}

	validateShape(v, p)
	if v.HasErrors() {
		return v
	}

	validateVector(v, p.Supply, "supply")
	validateVector(v, p.Demand, "demand")
	validateVector(v, p.PurchaseCosts, "purchase_costs")
	validateVector(v, p.SellingPrices, "selling_prices")
	for i, row := range p.TransportCosts {
		validateVector(v, row, fmt.Sprintf("transport_costs[%d]", i))
	}
	if v.HasErrors() {
		return v
	}

	if err := p.CheckMagnitude(); err != nil {
		if ae, ok := apperror.As(err); ok {
			v.Add(ae)
		} else {
			v.AddError(apperror.CodeValueOverflow, err.Error())
		}
		return v
	}

	validateVolumes(v, p)
	return v
}

// Validate возвращает одну ошибку apperror или nil
func Validate(p *broker.Problem, limits Limits) error {
	return ValidateProblem(p, limits).Err()
}

func validateShape(v *apperror.ValidationErrors, p *broker.Problem) {
	m, n := len(p.Supply), len(p.Demand)

	if len(p.PurchaseCosts) != m {
		v.AddErrorWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("%d purchase costs for %d suppliers", len(p.PurchaseCosts), m), "purchase_costs")
	}
	if len(p.SellingPrices) != n {
		v.AddErrorWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("%d selling prices for %d customers", len(p.SellingPrices), n), "selling_prices")
	}
	if len(p.TransportCosts) != m {
		v.AddErrorWithField(apperror.CodeShapeMismatch,
			fmt.Sprintf("%d transport cost rows for %d suppliers", len(p.TransportCosts), m), "transport_costs")
		return
	}
	for i, row := range p.TransportCosts {
		if len(row) != n {
			v.AddErrorWithField(apperror.CodeShapeMismatch,
				fmt.Sprintf("transport cost row %d has %d values for %d customers", i+1, len(row), n),
				fmt.Sprintf("transport_costs[%d]", i))
		}
	}
}

func validateVector(v *apperror.ValidationErrors, values []int64, field string) {
	for k, x := range values {
		switch {
		case x < 0:
			v.AddErrorWithField(apperror.CodeNegativeValue,
				fmt.Sprintf("negative value %d", x), fmt.Sprintf("%s[%d]", field, k))
		case x > MaxValue:
			v.AddErrorWithField(apperror.CodeInvalidArgument,
				fmt.Sprintf("value %d exceeds %d", x, MaxValue), fmt.Sprintf("%s[%d]", field, k))
		}
	}
}

// validateVolumes: нулевой суммарный объём ошибка, отдельные нулевые участники предупреждение
func validateVolumes(v *apperror.ValidationErrors, p *broker.Problem) {
	totalSupply, totalDemand := p.TotalSupply(), p.TotalDemand()
	if totalSupply == 0 && totalDemand == 0 {
		v.AddErrorWithField(apperror.CodeZeroVolume, "total supply and total demand are both zero", "supply")
		return
	}
	if totalSupply == 0 {
		v.Add(apperror.NewWarning(apperror.CodeZeroVolume, "total supply is zero, all demand goes to the dummy supplier").
			WithField("supply"))
	}
	if totalDemand == 0 {
		v.Add(apperror.NewWarning(apperror.CodeZeroVolume, "total demand is zero, all supply goes to the dummy customer").
			WithField("demand"))
	}

	for i, s := range p.Supply {
		if s == 0 && totalSupply > 0 {
			v.Add(apperror.NewWarning(apperror.CodeZeroVolume, fmt.Sprintf("supplier %d has zero capacity", i+1)).
				WithField(fmt.Sprintf("supply[%d]", i)))
		}
	}
	for j, d := range p.Demand {
		if d == 0 && totalDemand > 0 {
			v.Add(apperror.NewWarning(apperror.CodeZeroVolume, fmt.Sprintf("customer %d has zero demand", j+1)).
				WithField(fmt.Sprintf("demand[%d]", j)))
		}
	}
}
