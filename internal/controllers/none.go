package controllers

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/deepc"
	"github.com/san-kum/deepc/internal/dynamo"
	"github.com/san-kum/deepc/internal/qp"
)

// None applies zero input: the open-loop response of the plant.
type None struct {
	inputs, outputs int
}

func NewNone(inputs, outputs int) *None {
	return &None{
		inputs:  inputs,
		outputs: outputs,
	}
}

func (n *None) Tini() int { return 1 }
func (n *None) Horizon() int { return 1 }
func (n *None) Inputs() int { return n.inputs }
func (n *None) Outputs() int { return n.outputs }

func (n *None) Solve(context.Context, dynamo.Data, bool) (*mat.Dense, deepc.Info, error) {
	return mat.NewDense(1, n.inputs, nil), deepc.Info{Status: qp.Solved}, nil
}
