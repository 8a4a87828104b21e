package analyst

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dshills/queryflow/querydb"
)

const (
	chartWidth   = 30
	chartMaxBars = 20
)

// RenderChart draws a horizontal bar chart of the first numeric column,
// labelled by the first text column (or the row number when there is none).
func RenderChart(rows querydb.Rows) (string, error) {
	if rows.Len() == 0 {
		return "", errors.New("no rows to chart")
	}
	valueCol, labelCol := -1, -1
	for i := range rows.Columns {
		switch rows.Data[0][i].(type) {
		case float64, int64, int:
			if valueCol < 0 {
				valueCol = i
			}
		case string:
			if labelCol < 0 {
				labelCol = i
			}
		}
	}
	if valueCol < 0 {
		return "", errors.New("no numeric column to chart")
	}

	n := rows.Len()
	if n > chartMaxBars {
		n = chartMaxBars
	}
	labels := make([]string, n)
	values := make([]float64, n)
	maxAbs, labelWidth := 0.0, 0
	for i := 0; i < n; i++ {
		row := rows.Data[i]
		labels[i] = fmt.Sprint(i + 1)
		if labelCol >= 0 {
			labels[i] = fmt.Sprint(row[labelCol])
		}
		labelWidth = max(labelWidth, len(labels[i]))
		values[i] = toFloat(row[valueCol])
		maxAbs = math.Max(maxAbs, math.Abs(values[i]))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chart of %s:\n", rows.Columns[valueCol])
	for i := range labels {
		bar := 0
		if maxAbs > 0 {
			bar = int(math.Round(math.Abs(values[i]) / maxAbs * chartWidth))
		}
		fmt.Fprintf(&b, "%-*s | %s %s\n", labelWidth, labels[i], strings.Repeat("█", bar), formatValue(values[i]))
	}
	if rows.Len() > n {
		fmt.Fprintf(&b, "(%d more rows not shown)\n", rows.Len()-n)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
