package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

func printReport(w io.Writer, list []domain.Finding, summary bool) error {
	if viper.GetBool("json") {
		if summary {
			return printJSON(w, findings.Summarize(list))
		}
		return printJSON(w, map[string]any{"findings": nonNil(list), "summary": findings.Count(list)})
	}
	if summary {
		printSummary(w, findings.Summarize(list))
		return nil
	}
	return printFindings(w, list)
}

func printFindings(w io.Writer, list []domain.Finding) error {
	c := findings.Count(list)
	if len(list) == 0 {
		fmt.Fprintln(w, "no findings")
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Severity", "Entity", "ID", "Field", "Message"})
	for _, f := range list {
		tw.AppendRow(table.Row{f.Severity, f.EntityType, f.EntityID, f.Field, f.Message})
	}
	tw.AppendFooter(table.Row{"", "", "", "Total", fmt.Sprintf("%d errors, %d warnings, %d info", c.Errors, c.Warnings, c.Infos)})
	tw.Render()
	return nil
}

func printSummary(w io.Writer, s findings.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Entity", "ID", "Errors", "Warnings", "Info", "Fields"})
	for _, e := range s.Entities {
		fields := ""
		for i, f := range e.Fields {
			if i > 0 {
				fields += ", "
			}
			fields += fmt.Sprintf("%s(%d)", f.Field, f.Total)
		}
		tw.AppendRow(table.Row{e.EntityType, e.EntityID, e.Errors, e.Warnings, e.Infos, fields})
	}
	tw.AppendFooter(table.Row{"", "Total", s.Errors, s.Warnings, s.Infos, ""})
	tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(list []domain.Finding) []domain.Finding {
	if list == nil {
		return []domain.Finding{}
	}
	return list
}
