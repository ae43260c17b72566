// SPDX-License-Identifier: MIT
package resample

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// ErrNoResponses is returned when a flattening filter is requested without recordings.
var ErrNoResponses = errors.New("resample: no impulse responses")

// DesignFlatteningFilter derives playback pre-compensation taps from
// recordings of the speaker-to-microphone impulse response. All recordings
// must have the same length, which becomes the filter length.
//
// The recordings are DC-corrected and transformed, their spectra averaged,
// and the average inverted bin by bin (zero bins stay zero and the DC bin is
// forced to zero). The inverse transform is Hann-windowed and normalized so
// its taps sum to one.
func DesignFlatteningFilter(responses [][]float64) ([]float64, error) {
	if len(responses) == 0 {
		return nil, ErrNoResponses
	}
	n := len(responses[0])
	if n < 2 {
		return nil, fmt.Errorf("impulse response of %d samples: %w", n, ErrInvalidConfig)
	}

	fft := fourier.NewCmplxFFT(n)
	seq := make([]complex128, n)
	coeffs := make([]complex128, n)
	avg := make([]complex128, n)
	scale := complex(1/float64(len(responses)), 0)

	for r, resp := range responses {
		if len(resp) != n {
			return nil, fmt.Errorf("impulse response %d has %d samples, want %d: %w", r, len(resp), n, ErrInvalidConfig)
		}
		mean := floats.Sum(resp) / float64(n)
		for i, v := range resp {
			seq[i] = complex(v-mean, 0)
		}
		fft.Coefficients(coeffs, seq)
		for k, c := range coeffs {
			avg[k] += c * scale
		}
	}

	for k, c := range avg {
		if c != 0 {
			avg[k] = 1 / c
		}
	}
	avg[0] = 0

	fft.Sequence(seq, avg)

	taps := make([]float64, n)
	for i, c := range seq {
		if cmplx.IsNaN(c) || cmplx.IsInf(c) {
			return nil, fmt.Errorf("impulse response inversion is not finite at tap %d: %w", i, ErrInvalidConfig)
		}
		taps[i] = real(c)
	}
	// The inverse transform is unnormalized.
	floats.Scale(1/float64(n), taps)
	window.Hann(taps)

	sum := floats.Sum(taps)
	if sum == 0 {
		sum = 1
	}
	floats.Scale(1/sum, taps)

	return taps, nil
}

// WriteTaps writes one tap per line in a form ReadTaps parses back exactly.
func WriteTaps(w io.Writer, taps []float64) error {
	bw := bufio.NewWriter(w)
	for _, t := range taps {
		bw.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadTaps parses one tap per line. Blank lines and lines starting with '#'
// are skipped.
func ReadTaps(r io.Reader) ([]float64, error) {
	var taps []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("taps line %d: %w", line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("taps line %d is not finite: %w", line, ErrInvalidConfig)
		}
		taps = append(taps, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return taps, nil
}

// LoadTaps reads a taps file written by WriteTaps.
func LoadTaps(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open taps file: %w", err)
	}
	defer f.Close()
	return ReadTaps(f)
}
