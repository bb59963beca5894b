package linker

import (
	"regexp"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/pkg/models"
)

var propRef = regexp.MustCompile(`prop\(\s*"([^"]+)"\s*\)`)

// References returns the column names a formula reads through prop("Name"),
// in first-use order without duplicates.
func References(formula string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range propRef.FindAllStringSubmatch(formula, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

func isFormula(c models.Column) bool {
	return c.EffectiveType() == models.ColumnFormula
}

// FormulaOrder sorts the formula columns (plain and flexible) so every
// formula runs after the formulas it references. Ties keep column order.
// A reference cycle fails with DEPENDENCY_CYCLE naming the cycle.
func FormulaOrder(cols []models.Column) ([]models.Column, error) {
	index := make(map[string]int)
	var formulas []models.Column
	for _, c := range cols {
		if isFormula(c) {
			index[c.Name] = len(formulas)
			formulas = append(formulas, c)
		}
	}

	deps := make([][]int, len(formulas))
	for i, c := range formulas {
		for _, ref := range References(c.Props.Formula) {
			if j, ok := index[ref]; ok {
				deps[i] = append(deps[i], j)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(formulas))
	var order []models.Column
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return errors.DependencyCycle(cycleNames(formulas, stack, i))
		}
		state[i] = visiting
		stack = append(stack, i)
		for _, j := range deps[i] {
			if err := visit(j); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		order = append(order, formulas[i])
		return nil
	}

	for i := range formulas {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func cycleNames(cols []models.Column, stack []int, start int) []string {
	var names []string
	for k := len(stack) - 1; k >= 0; k-- {
		if stack[k] == start {
			for _, i := range stack[k:] {
				names = append(names, cols[i].Name)
			}
			break
		}
	}
	return append(names, cols[start].Name)
}
