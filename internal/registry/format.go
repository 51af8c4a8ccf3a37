package registry

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count in binary units with at most two decimals,
// e.g. "0 Bytes", "1 KB", "1.5 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	// floor(log_1024(bytes)) without the float error of math.Log at exact powers.
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatLimit renders a size limit without the unit gap, e.g. "10MB".
func FormatLimit(bytes int64) string {
	return strings.ReplaceAll(FormatSize(bytes), " ", "")
}

// FormatDate renders the date part of t in the given layout, in local time.
func FormatDate(t time.Time, layout string) string {
	if layout == "" {
		layout = "1/2/2006"
	}
	return t.Local().Format(layout)
}
