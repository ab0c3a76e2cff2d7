package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
)

// WriteData writes a trajectory as CSV with columns t, u0..uM-1,
// y0..yP-1.
func WriteData(w io.Writer, data dynamo.Data) error {
	cw := csv.NewWriter(w)

	m, p := data.Inputs(), data.Outputs()
	header := []string{"t"}
	for i := 0; i < m; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	for i := 0; i < p; i++ {
		header = append(header, fmt.Sprintf("y%d", i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for t := 0; t < data.Len(); t++ {
		row := []string{strconv.Itoa(t)}
		u, y := data.Row(t)
		for _, v := range u {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		for _, v := range y {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadData parses CSV written by WriteData. Columns are classified by
// header prefix: u for inputs, y for outputs; anything else is ignored.
func ReadData(r io.Reader) (dynamo.Data, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return dynamo.Data{}, errors.Wrap(err, "read csv")
	}
	if len(records) < 2 {
		return dynamo.Data{}, fmt.Errorf("%w: csv has no samples", dynamo.ErrInsufficientData)
	}

	var uCols, yCols []int
	for j, name := range records[0] {
		switch {
		case strings.HasPrefix(name, "u"):
			uCols = append(uCols, j)
		case strings.HasPrefix(name, "y"):
			yCols = append(yCols, j)
		}
	}
	if len(uCols) == 0 || len(yCols) == 0 {
		return dynamo.Data{}, fmt.Errorf("%w: csv needs u and y columns, header %v",
			dynamo.ErrDimensionMismatch, records[0])
	}

	T := len(records) - 1
	u := mat.NewDense(T, len(uCols), nil)
	y := mat.NewDense(T, len(yCols), nil)
	parse := func(dst *mat.Dense, cols []int) error {
		for t, rec := range records[1:] {
			for k, j := range cols {
				v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
				if err != nil {
					return errors.Wrapf(err, "row %d column %s", t+1, records[0][j])
				}
				dst.Set(t, k, v)
			}
		}
		return nil
	}
	if err := parse(u, uCols); err != nil {
		return dynamo.Data{}, err
	}
	if err := parse(y, yCols); err != nil {
		return dynamo.Data{}, err
	}
	return dynamo.NewData(u, y)
}

func SaveData(path string, data dynamo.Data) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	return errors.Wrapf(WriteData(f, data), "write %s", path)
}

func LoadData(path string) (dynamo.Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return dynamo.Data{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	data, err := ReadData(f)
	if err != nil {
		return dynamo.Data{}, errors.Wrapf(err, "load %s", path)
	}
	return data, nil
}
