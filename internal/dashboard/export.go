package dashboard

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/regwatch/regwatch/internal/compliance"
)

// WriteSummaryCSV serialises the headline counts.
func WriteSummaryCSV(w io.Writer, summary compliance.Summary) error {
	writer := csv.NewWriter(w)
	records := [][]string{
		{"Metric", "Value"},
		{"Facilities", itoa(summary.Facilities.Int())},
		{"Inspections", itoa(summary.Inspections.Int())},
		{"OAI inspections", itoa(summary.OAIInspections.Int())},
		{"Form 483s", itoa(summary.Form483s.Int())},
		{"Warning letters", itoa(summary.WarningLetters.Int())},
		{"Investigators", itoa(summary.Investigators.Int())},
		{"Refreshed", summary.RefreshedAt.String()},
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

// WriteYearsCSV emits inspections per fiscal year split by classification.
func WriteYearsCSV(w io.Writer, years []compliance.YearCount) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Fiscal year", "NAI", "VAI", "OAI", "Total"}); err != nil {
		return err
	}
	for _, y := range years {
		if err := writer.Write([]string{
			itoa(y.FiscalYear.Int()),
			itoa(y.NAI.Int()),
			itoa(y.VAI.Int()),
			itoa(y.OAI.Int()),
			itoa(y.Total()),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSystemsCSV emits Form 483 citations per quality system.
func WriteSystemsCSV(w io.Writer, rows []SystemRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"System", "Name", "Current FY", "Previous FY", "Change"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.Code, row.Name, itoa(row.Current), itoa(row.Previous), itoa(row.Change)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
