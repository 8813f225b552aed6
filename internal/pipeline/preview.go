package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"go-csvmap/internal/mapper"
	"go-csvmap/internal/mapping"
	"go-csvmap/internal/model"
	"go-csvmap/internal/sink"
)

// Preview maps a job in memory and returns every table as CSV text. Nothing is
// written to disk.
func Preview(ctx context.Context, job model.JobSpec, rootTable string, metrics *sink.Metrics, log logrus.FieldLogger) ([]model.TablePreview, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	spec, err := mapping.Parse(job.Mapping)
	if err != nil {
		return nil, err
	}
	records, err := LoadRecords(ctx, job, log)
	if err != nil {
		return nil, err
	}

	mem := sink.NewMemory()
	var factory sink.Factory = mem
	if metrics != nil {
		factory = metrics.Instrument(mem)
	}
	m := mapper.New(spec,
		mapper.WithFactory(factory),
		mapper.WithTableName(tableName(job.TableName, rootTable)),
		mapper.WithWriteHeader(job.Export.Header()),
		mapper.WithLogger(log),
	)
	defer m.Close()

	if err := m.Parse(records, job.UserData); err != nil {
		return nil, err
	}
	tables, err := m.Tables()
	if err != nil {
		return nil, err
	}

	previews := make([]model.TablePreview, 0, len(tables))
	for _, t := range tables {
		p := model.TablePreview{
			Name:       t.Name(),
			Header:     t.Header(),
			PrimaryKey: t.PrimaryKey(),
			RowCount:   t.RowCount(),
		}
		if mt, ok := mem.Table(t.Name()); ok {
			p.CSV = mt.CSV()
		}
		previews = append(previews, p)
	}
	return previews, nil
}
