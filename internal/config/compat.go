// SPDX-License-Identifier: MIT
package config

// Derived quantities. Every fixed-size buffer in the trap is sized from these,
// so they are computed in one place.

// FFTWindowSize returns the number of downsampled samples per analysis window.
func (c *Config) FFTWindowSize() int {
	return c.Audio.WindowSize / c.Resample.DownsampleRatio
}

// FFTSampleRate returns the sample rate after downsampling.
func (c *Config) FFTSampleRate() int {
	return c.Audio.SampleRate / c.Resample.DownsampleRatio
}

// FrequencyBins returns the number of magnitude bins per spectrum.
func (c *Config) FrequencyBins() int {
	return c.FFTWindowSize() / 2
}

// FreqWidth returns the bin-width constant: FFT window size over the
// downsampled sample rate. Magnitudes and template values are scaled by it.
func (c *Config) FreqWidth() float64 {
	return float64(c.FFTWindowSize()) / float64(c.FFTSampleRate())
}

// OutputSampleRate returns the DAC tick rate.
func (c *Config) OutputSampleRate() int {
	return c.Audio.SampleRate * c.Resample.UpsampleRatio
}

// WindowsPerSecond returns how many spectra the pipeline produces per second.
func (c *Config) WindowsPerSecond() float64 {
	return float64(c.FFTSampleRate()) / float64(c.FFTWindowSize())
}

// HistoryWindows returns the capacity of the spectral history.
func (c *Config) HistoryWindows() int {
	return c.Spectral.RecordSeconds * c.FFTSampleRate() / c.FFTWindowSize()
}

// RawHistorySamples returns the capacity of the time-domain history saved
// with each detection.
func (c *Config) RawHistorySamples() int {
	return c.Spectral.RecordSeconds*c.FFTSampleRate() + c.FFTWindowSize()*c.Spectral.TimeAverageWindows
}

// PlaybackCapacity returns the playback buffer size in samples.
func (c *Config) PlaybackCapacity() int {
	return c.Playback.MaxSeconds * c.Audio.SampleRate
}

// ADCMax returns the largest raw ADC value.
func (c *Config) ADCMax() int {
	return 1<<c.Audio.ADCBits - 1
}

// DACMax returns the largest value the DAC accepts.
func (c *Config) DACMax() int {
	return 1<<c.Audio.DACBits - 1
}

// DACMid returns the DAC midscale value.
func (c *Config) DACMid() int {
	return 1 << (c.Audio.DACBits - 1)
}
