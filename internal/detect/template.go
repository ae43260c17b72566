// SPDX-License-Identifier: MIT
package detect

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// LoadTemplate reads a template written one magnitude per line, window after
// window, each window binCount values long. Values are multiplied by
// freqWidth and rounded so they compare with the integer history.
func LoadTemplate(r io.Reader, binCount int, freqWidth float64) ([][]float64, error) {
	if binCount < 1 {
		return nil, fmt.Errorf("bin count %d: %w", binCount, ErrTemplateShape)
	}

	var (
		data   [][]float64
		window []float64
		line   int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("template line %d: %w", line, err)
		}
		if window == nil {
			window = make([]float64, 0, binCount)
		}
		window = append(window, math.Round(v*freqWidth))
		if len(window) == binCount {
			data = append(data, window)
			window = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	if window != nil {
		return nil, fmt.Errorf("trailing partial window of %d values: %w", len(window), ErrTemplateShape)
	}
	if len(data) == 0 {
		return nil, ErrEmptyTemplate
	}
	return data, nil
}

// LoadTemplateFile opens path and calls LoadTemplate.
func LoadTemplateFile(path string, binCount int, freqWidth float64) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()
	return LoadTemplate(f, binCount, freqWidth)
}

// WriteTemplate writes windows in the layout LoadTemplate reads, dividing
// every value by freqWidth. A detection's history saved this way loads back
// as a template with the same freqWidth.
func WriteTemplate(w io.Writer, windows [][]float64, freqWidth float64) error {
	bw := bufio.NewWriter(w)
	for _, window := range windows {
		for _, v := range window {
			bw.WriteString(strconv.FormatFloat(v/freqWidth, 'g', -1, 64))
			bw.WriteByte('\n')
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}
