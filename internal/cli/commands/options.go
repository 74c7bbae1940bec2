package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// OptionInfo is the JSON form of a recognized option.
type OptionInfo struct {
	Scope       string   `json:"scope"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Default     any      `json:"default"`
	Allowed     []string `json:"allowed,omitempty"`
	Description string   `json:"description"`
}

// NewOptionsCommand creates the options command.
func NewOptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the recognized query options",
		Long: `List the options accepted by changes() (--option) and by the query as a
whole (--run-option). Unknown options are rejected before anything is sent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptions(cmd)
		},
	}
}

func runOptions(cmd *cobra.Command) error {
	r := NewCommandContext(cmd).Renderer
	infos := append(optionInfos("changes", core.ChangesOptions), optionInfos("run", core.RunOptions)...)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	r.Header(1, "Query options")
	rows := make([][]string, len(infos))
	for i, o := range infos {
		kind := o.Kind
		if len(o.Allowed) > 0 {
			kind = strings.Join(o.Allowed, "|")
		}
		rows[i] = []string{o.Scope, o.Name, kind, fmt.Sprint(o.Default), o.Description}
	}
	r.Table([]string{"Scope", "Name", "Type", "Default", "Description"}, rows)
	return nil
}

func optionInfos(scope string, specs map[string]core.OptionSpec) []OptionInfo {
	out := make([]OptionInfo, 0, len(specs))
	for _, name := range core.SortedKeys(specs) {
		s := specs[name]
		out = append(out, OptionInfo{
			Scope:       scope,
			Name:        s.Name,
			Kind:        s.Kind.String(),
			Default:     s.Default,
			Allowed:     s.Allowed,
			Description: s.Description,
		})
	}
	return out
}
