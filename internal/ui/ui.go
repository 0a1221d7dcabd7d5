package ui

import (
	stderrors "errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"dbtkit/pkg/errors"
)

// wrapPromptErr maps a Ctrl-C interrupt onto the shared cancellation sentinel
// so callers can distinguish "user backed out" from real failures.
func wrapPromptErr(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, terminal.InterruptErr) {
		return errors.ErrCancelled
	}
	return errors.Wrap(err, errors.ErrCodeUserInput, "Prompt failed")
}

// Select displays a selection prompt
func Select(message string, options []string) (string, error) {
	var result string
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 10,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", wrapPromptErr(err)
	}
	return result, nil
}

// SearchableSelect displays a selection prompt with case-insensitive
// substring filtering, for long option lists like model names.
func SearchableSelect(message string, options []string) (string, error) {
	var result string
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 15,
		Filter: func(filter string, value string, index int) bool {
			return strings.Contains(strings.ToLower(value), strings.ToLower(filter))
		},
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", wrapPromptErr(err)
	}
	return result, nil
}

// MultiSelect displays a multi-select prompt. An empty selection counts as a
// cancellation; every caller treats "picked nothing" as "do nothing".
func MultiSelect(message string, options []string) ([]string, error) {
	selected := []string{}
	prompt := &survey.MultiSelect{
		Message:  message,
		Options:  options,
		PageSize: 15,
		Filter: func(filter string, value string, index int) bool {
			return strings.Contains(strings.ToLower(value), strings.ToLower(filter))
		},
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return nil, wrapPromptErr(err)
	}
	return selectionOrCancel(selected)
}

// selectionOrCancel maps an empty multi-select onto cancellation: picking
// nothing must behave exactly like backing out, never like "apply to none".
func selectionOrCancel(selected []string) ([]string, error) {
	if len(selected) == 0 {
		return nil, errors.ErrCancelled
	}
	return selected, nil
}

// Input displays a text input prompt
func Input(message, defaultValue, help string) (string, error) {
	var result string
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
		Help:    help,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", wrapPromptErr(err)
	}
	return result, nil
}

// InputRequired displays a text input prompt that rejects empty answers
func InputRequired(message, help string) (string, error) {
	var result string
	prompt := &survey.Input{
		Message: message,
		Help:    help,
	}
	if err := survey.AskOne(prompt, &result, survey.WithValidator(survey.Required)); err != nil {
		return "", wrapPromptErr(err)
	}
	return result, nil
}

// Confirm displays a yes/no prompt
func Confirm(message string, defaultValue bool) (bool, error) {
	var result bool
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, wrapPromptErr(err)
	}
	return result, nil
}
