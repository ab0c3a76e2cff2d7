package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
)

type ExportData struct {
	Run     RunMetadata        `json:"run"`
	Samples int                `json:"samples"`
	U       [][]float64        `json:"u"`
	Y       [][]float64        `json:"y"`
	Metrics map[string]float64 `json:"metrics"`
}

func NewExport(meta RunMetadata, data dynamo.Data) ExportData {
	return ExportData{
		Run:     meta,
		Samples: data.Len(),
		U:       rows(data.U),
		Y:       rows(data.Y),
		Metrics: meta.Metrics,
	}
}

func rows(m *mat.Dense) [][]float64 {
	if m == nil {
		return [][]float64{}
	}
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func WriteJSON(w io.Writer, meta RunMetadata, data dynamo.Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewExport(meta, data))
}

// ExportJSON writes a stored run as one JSON document. An empty path
// writes to stdout.
func (s *Store) ExportJSON(runID, path string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	data, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	if path == "" {
		return WriteJSON(os.Stdout, *meta, data)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	return errors.Wrapf(WriteJSON(f, *meta, data), "export %s", runID)
}
