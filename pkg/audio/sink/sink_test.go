package sink

import "testing"

func TestOtoImplementsSink(t *testing.T) {
	var _ Sink = (*Oto)(nil)
}

func TestNewOtoDefaultsToFullVolumeUnmuted(t *testing.T) {
	o := NewOto(nil)
	if o == nil {
		t.Fatal("NewOto returned nil")
	}
	if got := o.VolumeGet(); got != 100 {
		t.Errorf("expected default volume 100, got %d", got)
	}
	if o.MuteGet() {
		t.Error("expected default mute false")
	}
}

func TestVolumeSetClampsToRange(t *testing.T) {
	o := NewOto(nil)
	o.VolumeSet(-5)
	if got := o.VolumeGet(); got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
	o.VolumeSet(150)
	if got := o.VolumeGet(); got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
}

func TestWriteBeforeOpenReturnsError(t *testing.T) {
	o := NewOto(nil)
	if err := o.Write([]int32{1, 2, 3}); err == nil {
		t.Error("expected error writing to unopened sink")
	}
}

func TestApplyVolumeMutedZeroesSamples(t *testing.T) {
	out := applyVolume([]int32{1000, -2000}, 100, true)
	for _, s := range out {
		if s != 0 {
			t.Errorf("expected muted output to be silent, got %d", s)
		}
	}
}
