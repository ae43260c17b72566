// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants. They are the deployed trap's settings and
// the defaults used when no config file is present.
const (
	// Audio input
	DefaultInputDevice     = MinDeviceID
	DefaultOutputDevice    = MinDeviceID
	DefaultSampleRate      = 4096 // ADC sample rate (Hz)
	DefaultWindowSize      = 256  // raw samples per analysis window
	DefaultADCBits         = 12
	DefaultDACBits         = 12
	DefaultFramesPerBuffer = 256

	// Resampling
	DefaultDownsampleRatio         = 2
	DefaultUpsampleRatio           = 8
	DefaultDownsampleZeroCrossings = 5
	DefaultUpsampleZeroCrossings   = 5

	// Spectral processing
	DefaultAlphaTrimWindow    = 32
	DefaultAlphaTrimThreshold = 4.0
	DefaultTimeAverageWindows = 4
	DefaultFrequencySmoothing = 4
	DefaultRecordSeconds      = 8

	// Detection
	DefaultDetectionMethod       = MethodCorrelation
	DefaultTemplateLength        = 13
	DefaultCorrelationLowHz      = 50.0
	DefaultCorrelationHighHz     = 110.0
	DefaultCorrelationThreshold  = 0.5
	DefaultTargetHz              = 70.0
	DefaultMarginHz              = 8.0
	DefaultHarmonics             = 1
	DefaultSignalThreshold       = 400.0
	DefaultExpectedSignalSeconds = 5.0
	DefaultEfficiency            = 1.0
	DefaultPollInterval          = 2 * time.Millisecond

	// Playback and capture
	DefaultPlaybackSeconds = 8
	DefaultCaptureDir      = "./captures"
	DefaultCapturePattern  = "%Y%m%d-%H%M%S"
	DefaultCaptureBitDepth = 16

	// Transport
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 62500 * time.Microsecond // one analysis window at 2048 Hz / 128
	DefaultWebSocketAddress = ":8080"

	// Hardware and processing limits
	MinDeviceID   = -1 // -1 represents system default device
	MinSampleRate = 256
	MaxSampleRate = 192000
	MaxADCBits    = 16
)

// Detection methods.
const (
	MethodCorrelation = "correlation"
	MethodPeaks       = "peaks"
)
