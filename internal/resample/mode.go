// SPDX-License-Identifier: MIT
package resample

// Mode selects which tick the timer drives.
type Mode int

const (
	// ModeRecord downsamples the ADC into the input window.
	ModeRecord Mode = iota
	// ModePlayback upsamples the playback buffer to the DAC.
	ModePlayback
	// ModeRecordAndPlayback does both from one timer running at the output rate.
	ModeRecordAndPlayback
	// ModeRawRecordAndPlayback copies playback to the DAC and the ADC to the
	// input window without filtering. Used for impulse calibration.
	ModeRawRecordAndPlayback
)

func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModePlayback:
		return "playback"
	case ModeRecordAndPlayback:
		return "record+playback"
	case ModeRawRecordAndPlayback:
		return "raw record+playback"
	default:
		return "unknown"
	}
}

// TickRate returns the timer frequency the mode needs, given the ADC sample
// rate and the upsample ratio.
func (m Mode) TickRate(sampleRate, upsampleRatio int) int {
	switch m {
	case ModePlayback, ModeRecordAndPlayback:
		return sampleRate * upsampleRatio
	default:
		return sampleRate
	}
}
