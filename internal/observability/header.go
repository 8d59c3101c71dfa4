package observability

import (
	"fmt"
	"net/http"
	"strings"
)

// AppendServerTiming adds one Server-Timing metric. Non-positive durations and
// empty descriptions are omitted; if both are missing nothing is written.
func AppendServerTiming(w http.ResponseWriter, name string, durMs float64, desc string) {
	if durMs <= 0 && desc == "" {
		return
	}
	var b strings.Builder
	b.WriteString(name)
	if durMs > 0 {
		fmt.Fprintf(&b, ";dur=%.2f", durMs)
	}
	if desc != "" {
		fmt.Fprintf(&b, ";desc=%q", desc)
	}
	w.Header().Add("Server-Timing", b.String())
}

func SetIfPos(w http.ResponseWriter, key string, ms float64) {
	if ms > 0 {
		w.Header().Set(key, fmt.Sprintf("%.2f", ms))
	}
}
