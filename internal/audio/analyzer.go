// Package audio turns a mono PCM stream into the per-frame spectral
// features the Reactivity Router's audio channel consumes. Grounded on
// the FFT-based analyzer pattern in the retrieved golizer analyzer (FFT
// size, Hann window, band-energy magnitude averaging), retargeted to the
// exact band edges and derived features this host's spec calls for.
package audio

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// FFTSize is the fixed transform size; shorter sample buffers are
// zero-padded, longer ones truncated.
const FFTSize = 2048

// SmoothingConstant is the EMA weight fed into the peak envelopes used to
// normalize band energies into [0,1].
const SmoothingConstant = 0.3

// SmoothWeight is the weight used by the exported Smooth field's EMA.
const SmoothWeight = 0.1

// SilenceThreshold gates downstream consumers: below this energy level the
// frame is reported Silent and carries no reactive information.
const SilenceThreshold = 0.05

const rhythmWindow = 15
const energyHistorySize = 60

// Features is the single per-frame record the analyzer emits.
type Features struct {
	Bass float64
	Mid float64
	High float64
	Energy float64
	Transient float64
	Rhythm float64
	Peak float64
	Smooth float64
	Silent bool
}

// Analyzer holds the rolling state (peak envelopes, energy history,
// previous-frame energy) needed to derive transient/rhythm/smooth across
// calls to Analyze.
type Analyzer struct {
	sampleRate float64

	bassPeak float64
	midPeak float64
	highPeak float64

	prevEnergy float64
	smoothed float64
	energyHist []float64

	buffer []complex128
	window []float64
}

// New builds an Analyzer for the given input sample rate (device default
// if 0 is passed, i.e. 44100 Hz).
func New(sampleRate float64) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = 44_100
	}
	return &Analyzer{
		sampleRate: sampleRate,
		energyHist: make([]float64, 0, energyHistorySize),
	}
}

// Analyze computes Features for one frame of mono samples. An empty
// sample slice yields a fully silent frame without touching history.
func (a *Analyzer) Analyze(samples []float32) Features {
	if len(samples) == 0 {
		return Features{Silent: true}
	}

	a.ensureWorkspace()

	n := len(a.buffer)
	for i := range a.buffer {
		if i < len(samples) {
			a.buffer[i] = complex(float64(samples[i])*a.window[i], 0)
		} else {
			a.buffer[i] = 0
		}
	}

	spectrum := fft.FFT(a.buffer)
	resolution := a.sampleRate / float64(n)

	rawBass := bandMagnitudeMean(spectrum, resolution, 20, 250)
	rawMid := bandMagnitudeMean(spectrum, resolution, 250, 2000)
	rawHigh := bandMagnitudeMean(spectrum, resolution, 2000, 20000)

	a.bassPeak = envelope(a.bassPeak, rawBass)
	a.midPeak = envelope(a.midPeak, rawMid)
	a.highPeak = envelope(a.highPeak, rawHigh)

	bass := normalize(rawBass, a.bassPeak)
	mid := normalize(rawMid, a.midPeak)
	high := normalize(rawHigh, a.highPeak)

	energy := clamp01(meanMagnitude(spectrum))

	transient := math.Max(0, energy-a.prevEnergy) * 10
	a.prevEnergy = energy

	a.pushEnergy(energy)
	rhythm := a.autocorrelationScore()

	peak := math.Max(bass, math.Max(mid, high))

	a.smoothed = a.smoothed*(1-SmoothWeight) + energy*SmoothWeight

	return Features{
		Bass: bass,
		Mid: mid,
		High: high,
		Energy: energy,
		Transient: clamp01(transient),
		Rhythm: rhythm,
		Peak: peak,
		Smooth: a.smoothed,
		Silent: energy < SilenceThreshold,
	}
}

func (a *Analyzer) ensureWorkspace() {
	if len(a.buffer) == FFTSize {
		return
	}
	a.buffer = make([]complex128, FFTSize)
	a.window = make([]float64, FFTSize)
	for i := range a.window {
		a.window[i] = hann(float64(i), float64(FFTSize))
	}
}

func hann(i, size float64) float64 {
	return 0.5 * (1 - math.Cos(2*math.Pi*i/size))
}

func bandMagnitudeMean(spectrum []complex128, resolution, loHz, hiHz float64) float64 {
	lo := int(math.Floor(loHz / resolution))
	hi := int(math.Ceil(hiHz / resolution))
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}
	if lo < 0 {
		lo = 0
	}
	if lo >= hi {
		return 0
	}
	sum := 0.0
	for _, c := range spectrum[lo:hi] {
		sum += magnitude(c)
	}
	return sum / float64(hi-lo)
}

func meanMagnitude(spectrum []complex128) float64 {
	half := len(spectrum) / 2
	if half == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range spectrum[:half] {
		sum += magnitude(c)
	}
	return sum / float64(half)
}

func magnitude(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

// envelope tracks a decaying peak so raw band magnitudes can be normalized
// into [0,1] relative to recent history. Both directions use
// SmoothingConstant, but not symmetrically: a rising input moves the peak
// with weight SmoothingConstant, a falling one with 1-SmoothingConstant.
func envelope(peak, input float64) float64 {
	if input > peak {
		return peak*(1-SmoothingConstant) + input*SmoothingConstant
	}
	return peak*SmoothingConstant + input*(1-SmoothingConstant)
}

func normalize(value, peak float64) float64 {
	if peak < 1e-6 {
		return 0
	}
	return clamp01(value / peak)
}

func (a *Analyzer) pushEnergy(e float64) {
	a.energyHist = append(a.energyHist, e)
	if len(a.energyHist) > energyHistorySize {
		copy(a.energyHist, a.energyHist[1:])
		a.energyHist = a.energyHist[:energyHistorySize]
	}
}

// autocorrelationScore computes a windowed auto-correlation of the energy
// history (window size rhythmWindow) at lag = rhythmWindow, scaled by 2 and
// clamped to [0,1]
func (a *Analyzer) autocorrelationScore() float64 {
	n := len(a.energyHist)
	if n < 2*rhythmWindow {
		return 0
	}
	recent := a.energyHist[n-rhythmWindow:]
	lagged := a.energyHist[n-2*rhythmWindow : n-rhythmWindow]

	meanRecent := meanOf(recent)
	meanLagged := meanOf(lagged)

	var num, denomA, denomB float64
	for i := 0; i < rhythmWindow; i++ {
		da := recent[i] - meanRecent
		db := lagged[i] - meanLagged
		num += da * db
		denomA += da * da
		denomB += db * db
	}
	if denomA < 1e-9 || denomB < 1e-9 {
		return 0
	}
	corr := num / math.Sqrt(denomA*denomB)
	return clamp01(corr * 2)
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
