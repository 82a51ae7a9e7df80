package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/zombor/parcel-desk/internal/desk"
	"github.com/zombor/parcel-desk/internal/parcel"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// valueWidth wraps long causes so the table fits a terminal
const valueWidth = 60

// fieldRow is one labelled line of a result or failure table
type fieldRow struct {
	label string
	value string
}

// renderFields draws labelled values as a two column table
func renderFields(rows []fieldRow) string {
	if len(rows) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.label, r.value})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, WidthMax: valueWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	return tw.Render()
}

// renderResult prints the logged entry and where it landed
func renderResult(result *desk.LogResult) string {
	if result == nil || result.Entry == nil {
		return ""
	}
	entry := result.Entry

	parcelType := entry.ParcelType
	if entry.ParcelTypeRaw != "" && !strings.EqualFold(entry.ParcelTypeRaw, entry.ParcelType) {
		parcelType = fmt.Sprintf("%s (%s)", entry.ParcelType, entry.ParcelTypeRaw)
	}

	rows := []fieldRow{
		{"Supplier", entry.Supplier},
		{"Resident", entry.ResidentName},
		{"Unit", entry.Unit},
		{"Parcel type", parcelType},
		{"Logged at", entry.LoggedAt.Format("2006-01-02 15:04:05")},
	}
	if result.Append != nil {
		if result.Append.UpdatedRange != "" {
			rows = append(rows, fieldRow{"Range", result.Append.UpdatedRange})
		}
		rows = append(rows, fieldRow{"Attempts", strconv.Itoa(result.Append.Attempts)})
	}
	if result.Notice != nil {
		rows = append(rows, fieldRow{"Notice", result.Notice.ID})
	}

	return renderFields(rows) + "\n"
}

// renderFailure explains a pipeline error to the operator
func renderFailure(err error, colorize bool) string {
	pe, ok := parcel.AsError(err)
	if !ok {
		return fmt.Sprintf("error: %v\n", err)
	}

	rows := []fieldRow{
		{"Kind", pe.KindName()},
		{"Stage", string(pe.Stage)},
	}
	if fields := parcel.MissingFields(err); len(fields) > 0 {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = string(f)
		}
		rows = append(rows, fieldRow{"Missing", strings.Join(names, ", ")})
	}
	if pe.Err != nil {
		rows = append(rows, fieldRow{"Cause", pe.Err.Error()})
	}
	retry := "no, fix the cause first"
	if pe.Retryable() {
		retry = "yes"
	}
	rows = append(rows, fieldRow{"Retry", retry})

	line := "parcel not logged"
	if colorize {
		line = ansiRed + line + ansiReset
	}
	return line + "\n" + renderFields(rows) + "\n"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
