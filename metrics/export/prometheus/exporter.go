package prometheus

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	goCreds "github.com/MrEthical07/goCreds"
	"github.com/MrEthical07/goCreds/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is satisfied by *goCreds.Engine.
type Source interface {
	MetricsSnapshot() goCreds.MetricsSnapshot
	AuditDropped() uint64
}

type Exporter struct {
	source Source
}

// New returns an exporter reading from source, typically an engine.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition text on every request.
func (x *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, x.Render())
	})
}

// Render returns the exposition text, or "" when metrics are disabled and no
// audit events were dropped.
func (x *Exporter) Render() string {
	if x == nil || x.source == nil {
		return ""
	}

	snap := x.source.MetricsSnapshot()
	dropped := x.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var buf bytes.Buffer
	for _, def := range internaldefs.CounterDefs {
		counter(&buf, def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		if raw, ok := snap.Histograms[def.ID]; ok {
			histogram(&buf, def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
		}
	}
	counter(&buf, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, dropped)
	return buf.String()
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func family(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}

func counter(w io.Writer, name, help string, v uint64) {
	family(w, name, help, "counter")
	fmt.Fprintf(w, "%s %d\n", name, v)
}

// histogram writes cumulative buckets. Snapshots carry no sum, so _sum is 0.
func histogram(w io.Writer, name, help string, cumulative [8]uint64) {
	family(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	fmt.Fprintf(w, "%s_count %d\n%s_sum 0\n", name, cumulative[len(cumulative)-1], name)
}
