// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation resampling between sample rates
package resample

import "testing"

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestNewResampler(t *testing.T) {
	r := New(44100, 48000, 2)

	if r.inputRate != 44100 {
		t.Errorf("expected inputRate 44100, got %d", r.inputRate)
	}
	if r.outputRate != 48000 {
		t.Errorf("expected outputRate 48000, got %d", r.outputRate)
	}
	if r.channels != 2 {
		t.Errorf("expected channels 2, got %d", r.channels)
	}
}

func TestResampleUpsampling(t *testing.T) {
	r := New(44100, 48000, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 100)
	}

	expectedSize := int(float64(len(input)) * float64(48000) / float64(44100))
	output := make([]int32, expectedSize)

	n := r.Resample(input, output)
	if n == 0 {
		t.Fatal("resampler produced no output")
	}
	if n < expectedSize-10 || n > expectedSize+10 {
		t.Errorf("expected ~%d samples, got %d", expectedSize, n)
	}
}

func TestResampleDownsampling(t *testing.T) {
	r := New(48000, 44100, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 100)
	}

	expectedSize := int(float64(len(input)) * float64(44100) / float64(48000))
	output := make([]int32, expectedSize)

	n := r.Resample(input, output)
	if n == 0 {
		t.Fatal("resampler produced no output")
	}
	if n < expectedSize-10 || n > expectedSize+10 {
		t.Errorf("expected ~%d samples, got %d", expectedSize, n)
	}
}

func TestResampleSameRate(t *testing.T) {
	r := New(48000, 48000, 2)

	input := make([]int32, 200)
	for i := range input {
		input[i] = int32(i * 100)
	}

	output := make([]int32, len(input)+10)
	n := r.Resample(input, output)

	if n < len(input)-5 || n > len(input)+5 {
		t.Errorf("expected ~%d samples, got %d", len(input), n)
	}
	for i := 0; i < n && i < len(input); i++ {
		if diff := abs(int(output[i]) - int(input[i])); diff > 200 {
			t.Errorf("sample %d: expected ~%d, got %d (diff %d)", i, input[i], output[i], diff)
		}
	}
}

func TestResampleStereoPreservesChannelPattern(t *testing.T) {
	r := New(44100, 48000, 2)

	input := make([]int32, 20)
	for i := 0; i < 10; i++ {
		input[i*2] = 1000
		input[i*2+1] = -1000
	}

	output := make([]int32, 30)
	n := r.Resample(input, output)
	if n == 0 {
		t.Fatal("resampler produced no output")
	}

	leftPositive, rightNegative := 0, 0
	for i := 0; i < n/2; i++ {
		if output[i*2] > 0 {
			leftPositive++
		}
		if output[i*2+1] < 0 {
			rightNegative++
		}
	}
	if leftPositive < n/4 {
		t.Error("left channel pattern not preserved")
	}
	if rightNegative < n/4 {
		t.Error("right channel pattern not preserved")
	}
}

func TestOutputSamplesNeededMatchesActualOutput(t *testing.T) {
	r := New(44100, 48000, 2)
	input := make([]int32, 200)

	needed := r.OutputSamplesNeeded(len(input))
	output := make([]int32, needed+2)
	n := r.Resample(input, output)

	if n > needed+2 {
		t.Errorf("OutputSamplesNeeded under-estimated: needed %d, got %d", needed, n)
	}
}

func TestResetClearsPosition(t *testing.T) {
	r := New(44100, 48000, 2)
	input := make([]int32, 200)
	output := make([]int32, 220)
	r.Resample(input, output)

	r.Reset()
	if r.position != 0 {
		t.Errorf("expected position reset to 0, got %f", r.position)
	}
}
