package hankel

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/excitation"
)

func ramp(T int) dynamo.Data {
	u := mat.NewDense(T, 2, nil)
	y := mat.NewDense(T, 1, nil)
	for t := 0; t < T; t++ {
		u.Set(t, 0, float64(t))
		u.Set(t, 1, float64(100+t))
		y.Set(t, 0, float64(-t))
	}
	return dynamo.Data{U: u, Y: y}
}

func TestBlockHankelLayout(t *testing.T) {
	x := mat.NewDense(5, 2, []float64{
		0, 10,
		1, 11,
		2, 12,
		3, 13,
		4, 14,
	})
	h, err := BlockHankel(x, 3)
	if err != nil {
		t.Fatal(err)
	}
	r, c := h.Dims()
	if r != 6 || c != 3 {
		t.Fatalf("expected 6x3, got %dx%d", r, c)
	}

	want := mat.NewDense(6, 3, []float64{
		0, 1, 2,
		10, 11, 12,
		1, 2, 3,
		11, 12, 13,
		2, 3, 4,
		12, 13, 14,
	})
	if !mat.Equal(h, want) {
		t.Errorf("unexpected layout:\n%v", mat.Formatted(h))
	}
}

func TestBuildColumns(t *testing.T) {
	tests := []struct {
		name          string
		T, tini, hor  int
		wantCols      int
		wantErr       error
	}{
		{"typical", 50, 4, 20, 27, nil},
		{"exact fit", 24, 4, 20, 1, nil},
		{"too short", 23, 4, 20, 0, dynamo.ErrInsufficientData},
		{"zero tini", 50, 0, 20, 0, dynamo.ErrDimensionMismatch},
		{"zero horizon", 50, 4, 0, 0, dynamo.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Build(ramp(tt.T), tt.tini, tt.hor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if s.Columns() != tt.wantCols {
				t.Errorf("expected %d columns, got %d", tt.wantCols, s.Columns())
			}
			if r, _ := s.Up.Dims(); r != tt.tini*2 {
				t.Errorf("Up rows %d, want %d", r, tt.tini*2)
			}
			if r, _ := s.Yf.Dims(); r != tt.hor {
				t.Errorf("Yf rows %d, want %d", r, tt.hor)
			}
		})
	}
}

func TestBuildColumnOrdering(t *testing.T) {
	s, err := Build(ramp(10), 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < s.Columns(); j++ {
		// column j starts at sample j; future block starts at j+tini
		if s.Up.At(0, j) != float64(j) || s.Up.At(1, j) != float64(100+j) {
			t.Errorf("column %d: past block starts at %v", j, s.Up.At(0, j))
		}
		if s.Uf.At(0, j) != float64(j+2) {
			t.Errorf("column %d: future block starts at %v", j, s.Uf.At(0, j))
		}
		if s.Yf.At(2, j) != -float64(j+4) {
			t.Errorf("column %d: last future output %v", j, s.Yf.At(2, j))
		}
	}
}

func TestBuildMoreDataMoreColumns(t *testing.T) {
	prev := 0
	for _, T := range []int{30, 40, 60, 100} {
		s, err := Build(ramp(T), 4, 20)
		if err != nil {
			t.Fatal(err)
		}
		if s.Columns() <= prev {
			t.Errorf("T=%d gave %d columns, not more than %d", T, s.Columns(), prev)
		}
		prev = s.Columns()
	}
}

func TestCheckExcitation(t *testing.T) {
	T := 200
	u := excitation.Uniform{Low: -1, High: 1, Seed: 1}.Generate(T, 2)
	rich := dynamo.Data{U: u, Y: mat.NewDense(T, 1, nil)}

	s, err := Build(rich, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CheckExcitation(2); err != nil {
		t.Errorf("random input should be exciting: %v", err)
	}

	flat := dynamo.Data{U: excitation.Zero{}.Generate(T, 2), Y: mat.NewDense(T, 1, nil)}
	s, err = Build(flat, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CheckExcitation(2); !errors.Is(err, dynamo.ErrNotExcited) {
		t.Errorf("expected ErrNotExcited, got %v", err)
	}

	short, err := Build(ramp(12), 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := short.CheckExcitation(1); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestStructureRank(t *testing.T) {
	s, err := Build(ramp(20), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	// every row of a ramp trajectory is affine in the column index
	if r := s.Rank(1e-9); r != 2 {
		t.Errorf("expected rank 2 for affine data, got %d", r)
	}
}
