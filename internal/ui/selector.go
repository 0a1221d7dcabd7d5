package ui

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"dbtkit/pkg/models"
)

// PickModel asks the user to choose a single model from the given names
func PickModel(names []string) (string, error) {
	if len(names) == 0 {
		return "", fmt.Errorf("no models to select from")
	}
	return SearchableSelect("Select model", names)
}

// PickModels asks the user to choose one or more models
func PickModels(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no models to select from")
	}
	return MultiSelect("Select models", names)
}

// RenderReconciliation renders reconciliation results as a table
func RenderReconciliation(results []models.ReconciliationResult) string {
	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Table", "Type", "State", "Declared", "Observed"})
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range results {
		table.Append([]string{
			r.Ref.String(),
			string(r.Type),
			string(r.State),
			formatDays(r.Declared),
			formatDays(r.Observed),
		})
	}
	table.Render()
	return buf.String()
}

// SelectReconciliationResults lets the user pick a subset of reconciliation
// results to act on. Results come back in the order they were offered.
func SelectReconciliationResults(message string, results []models.ReconciliationResult) ([]models.ReconciliationResult, error) {
	options := make([]string, len(results))
	byOption := make(map[string]models.ReconciliationResult, len(results))
	for i, r := range results {
		option := reconciliationOption(r)
		options[i] = option
		byOption[option] = r
	}

	selected, err := MultiSelect(message, options)
	if err != nil {
		return nil, err
	}

	picked := make([]models.ReconciliationResult, 0, len(selected))
	for _, option := range options {
		for _, s := range selected {
			if s == option {
				picked = append(picked, byOption[option])
			}
		}
	}
	return picked, nil
}

func reconciliationOption(r models.ReconciliationResult) string {
	switch r.State {
	case models.StateMismatched:
		return fmt.Sprintf("%s (declared %s, observed %s)",
			r.Ref, formatDays(r.Declared), formatDays(r.Observed))
	default:
		return fmt.Sprintf("%s (%s)", r.Ref, strings.ToLower(string(r.Type)))
	}
}

func formatDays(days *int) string {
	if days == nil {
		return "none"
	}
	return fmt.Sprintf("%dd", *days)
}
