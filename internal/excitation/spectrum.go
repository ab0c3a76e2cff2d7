package excitation

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"
)

// PowerSpectrum returns |X_k| for k = 0..T/2 of each input column.
func PowerSpectrum(u mat.Matrix) [][]float64 {
	T, M := u.Dims()
	out := make([][]float64, M)
	col := make([]float64, T)
	for m := 0; m < M; m++ {
		for t := 0; t < T; t++ {
			col[t] = u.At(t, m)
		}
		X := fft.FFTReal(col)
		ps := make([]float64, T/2+1)
		for k := range ps {
			ps[k] = cmplx.Abs(X[k])
		}
		out[m] = ps
	}
	return out
}

// SpectralLines counts, per channel, the one-sided frequency bins whose
// magnitude exceeds tol times the channel's largest bin. A signal needs
// enough distinct lines to be persistently exciting of a given order.
func SpectralLines(u mat.Matrix, tol float64) []int {
	spectra := PowerSpectrum(u)
	lines := make([]int, len(spectra))
	for m, ps := range spectra {
		peak := 0.0
		for _, v := range ps {
			peak = max(peak, v)
		}
		if peak == 0 {
			continue
		}
		for _, v := range ps {
			if v > tol*peak {
				lines[m]++
			}
		}
	}
	return lines
}
