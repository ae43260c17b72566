// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"time"

	"trap/internal/audio"
	"trap/internal/config"
	"trap/internal/detect"
	applog "trap/internal/log"
	"trap/internal/monitor"
	"trap/internal/resample"
	"trap/internal/spectral"
	"trap/internal/transport"
)

// calibrationSettle is the pause before each impulse.
const calibrationSettle = 500 * time.Millisecond

var errNoTemplate = errors.New("detection.template_file is required for correlation detection")

// session is one engine, controller and monitor built from a config.
type session struct {
	cfg       *config.Config
	engine    *resample.Engine
	ctrl      *audio.Controller
	pipeline  *spectral.Pipeline
	monitor   *monitor.Monitor
	threshold float64 // detection threshold on the monitor's score
}

func newEngine(cfg *config.Config, adc resample.ADC, dac resample.DAC) (*resample.Engine, error) {
	return resample.NewEngine(resample.Config{
		DownsampleRatio:         cfg.Resample.DownsampleRatio,
		UpsampleRatio:           cfg.Resample.UpsampleRatio,
		DownsampleZeroCrossings: cfg.Resample.DownsampleZeroCrossings,
		UpsampleZeroCrossings:   cfg.Resample.UpsampleZeroCrossings,
		WindowSize:              cfg.FFTWindowSize(),
		PlaybackCapacity:        cfg.PlaybackCapacity(),
		ADCMax:                  uint16(cfg.ADCMax()),
		DACMax:                  uint16(cfg.DACMax()),
	}, adc, dac)
}

func newController(cfg *config.Config, engine *resample.Engine, source audio.TickSource) *audio.Controller {
	return audio.NewController(engine, source, audio.ControllerConfig{
		SampleRate:    cfg.Audio.SampleRate,
		UpsampleRatio: cfg.Resample.UpsampleRatio,
		PollInterval:  cfg.Detection.PollInterval,
		Settle:        calibrationSettle,
	})
}

func newPipeline(cfg *config.Config) (*spectral.Pipeline, error) {
	return spectral.NewPipeline(spectral.Config{
		WindowSize:         cfg.FFTWindowSize(),
		SampleRate:         float64(cfg.FFTSampleRate()),
		AlphaTrimWindow:    cfg.Spectral.AlphaTrimWindow,
		AlphaTrimThreshold: cfg.Spectral.AlphaTrimThreshold,
		TimeAverageWindows: cfg.Spectral.TimeAverageWindows,
		FrequencySmoothing: cfg.Spectral.FrequencySmoothing,
		HistoryWindows:     cfg.HistoryWindows(),
		RawHistorySamples:  cfg.RawHistorySamples(),
	})
}

// newDetector returns the configured detector and the threshold its score
// is compared with.
func newDetector(cfg *config.Config) (monitor.Detector, float64, error) {
	d := cfg.Detection
	switch d.Method {
	case config.MethodPeaks:
		pd, err := detect.NewPeakDetector(detect.PeakConfig{
			TargetHz:              d.TargetHz,
			MarginHz:              d.MarginHz,
			Harmonics:             d.Harmonics,
			SignalThreshold:       d.SignalThreshold,
			ExpectedSignalSeconds: d.ExpectedSignalSeconds,
			Efficiency:            d.Efficiency,
			WindowSize:            cfg.FFTWindowSize(),
			SampleRate:            float64(cfg.FFTSampleRate()),
		})
		if err != nil {
			return nil, 0, err
		}
		if pd.Required() > float64(cfg.HistoryWindows()) {
			return nil, 0, fmt.Errorf("peak detection needs %.0f windows but the history holds %d", pd.Required(), cfg.HistoryWindows())
		}
		low, high := pd.Band()
		applog.Debugf("Detector: peaks in bins %d-%d, %.0f windows required", low, high, pd.Required())
		return monitor.NewPeakDetector(pd), pd.Required(), nil

	default:
		if d.TemplateFile == "" {
			return nil, 0, errNoTemplate
		}
		tmpl, err := detect.LoadTemplateFile(d.TemplateFile, cfg.FrequencyBins(), cfg.FreqWidth())
		if err != nil {
			return nil, 0, err
		}
		if len(tmpl) != d.TemplateLength {
			return nil, 0, fmt.Errorf("template %s has %d windows, want %d", d.TemplateFile, len(tmpl), d.TemplateLength)
		}
		c, err := detect.NewCorrelator(cfg.FFTWindowSize(), float64(cfg.FFTSampleRate()))
		if err != nil {
			return nil, 0, err
		}
		if err := c.SetTemplate(tmpl, d.CorrelationLowHz, d.CorrelationHighHz); err != nil {
			return nil, 0, err
		}
		low, high := c.Band()
		applog.Debugf("Detector: correlation over bins [%d, %d), %d windows", low, high, c.TemplateLength())
		return monitor.NewCorrelationDetector(c, d.CorrelationThreshold), d.CorrelationThreshold, nil
	}
}

func newRecorder(cfg *config.Config) (*audio.Recorder, error) {
	r := cfg.Recording
	return audio.NewRecorder(r.OutputDir, r.FilePattern, cfg.FFTSampleRate(), r.BitDepth, cfg.Audio.ADCBits)
}

// newSession wires the engine to adc, dac and source, and the monitor to tr.
func newSession(cfg *config.Config, adc resample.ADC, dac resample.DAC, source audio.TickSource, tr transport.Transport) (*session, error) {
	engine, err := newEngine(cfg, adc, dac)
	if err != nil {
		return nil, err
	}
	pipeline, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}
	detector, threshold, err := newDetector(cfg)
	if err != nil {
		return nil, err
	}

	mcfg := monitor.Config{
		Source:       engine,
		Pipeline:     pipeline,
		Detector:     detector,
		Transport:    tr,
		PollInterval: cfg.Detection.PollInterval,
		Midscale:     int32(cfg.ADCMax()+1) / 2,
	}
	if cfg.Recording.Enabled {
		rec, err := newRecorder(cfg)
		if err != nil {
			return nil, err
		}
		mcfg.Saver = rec
	}
	m, err := monitor.New(mcfg)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:       cfg,
		engine:    engine,
		ctrl:      newController(cfg, engine, source),
		pipeline:  pipeline,
		monitor:   m,
		threshold: threshold,
	}, nil
}

// loadLure loads the playback file and the flattening filter, if configured.
// It reports whether there is anything to play.
func (s *session) loadLure() (bool, error) {
	if f := s.cfg.Playback.FlatteningFile; f != "" {
		taps, err := resample.LoadTaps(f)
		if err != nil {
			return false, err
		}
		if err := s.engine.SetFlatteningFilter(taps); err != nil {
			return false, err
		}
		applog.Infof("Playback: Flattening filter of %d taps from %s", len(taps), f)
	}

	if s.cfg.Playback.File == "" {
		return false, nil
	}
	samples, err := audio.LoadPlayback(s.cfg.Playback.File, s.cfg.Audio.SampleRate, s.cfg.Audio.DACBits)
	if err != nil {
		return false, err
	}
	if err := s.ctrl.LoadPlayback(samples); err != nil {
		return false, err
	}
	applog.Infof("Playback: %s, %.1f s", s.cfg.Playback.File, float64(len(samples))/float64(s.cfg.Audio.SampleRate))
	return len(samples) > 0, nil
}

// newTransport returns the event transports the config enables. Logging is
// always on.
func newTransport(cfg *config.Config) (transport.Transport, error) {
	ts := transport.Multi{transport.NewLoggingTransport()}
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		if err != nil {
			return nil, err
		}
		ts = append(ts, ws)
	}
	return ts, nil
}
