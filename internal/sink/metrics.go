package sink

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the tables of a factory receive.
type Metrics struct {
	rowsWritten  *prometheus.CounterVec
	rowsRejected *prometheus.CounterVec
	tablesOpened prometheus.Counter
}

// NewMetrics registers the sink collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "csvmap_rows_written_total",
			Help: "Rows written per output table.",
		}, []string{"table"}),
		rowsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "csvmap_rows_rejected_total",
			Help: "Rows rejected because of non-scalar cells, per output table.",
		}, []string{"table"}),
		tablesOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "csvmap_tables_opened_total",
			Help: "Output tables opened.",
		}),
	}
}

// Instrument wraps f so that every table it opens is counted.
func (m *Metrics) Instrument(f Factory) Factory {
	return &instrumentedFactory{next: f, metrics: m}
}

type instrumentedFactory struct {
	next    Factory
	metrics *Metrics
}

func (f *instrumentedFactory) Open(name string, header []string, writeHeader bool) (Table, error) {
	t, err := f.next.Open(name, header, writeHeader)
	if err != nil {
		return nil, err
	}
	f.metrics.tablesOpened.Inc()
	return &instrumentedTable{
		Table:    t,
		written:  f.metrics.rowsWritten.WithLabelValues(name),
		rejected: f.metrics.rowsRejected.WithLabelValues(name),
	}, nil
}

type instrumentedTable struct {
	Table
	written  prometheus.Counter
	rejected prometheus.Counter
}

func (t *instrumentedTable) WriteRow(cells []interface{}) error {
	err := t.Table.WriteRow(cells)
	switch {
	case err == nil:
		t.written.Inc()
	case errors.Is(err, ErrNonScalarCell):
		t.rejected.Inc()
	}
	return err
}
