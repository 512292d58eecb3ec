package audio

import "testing"

func tone(n int, freq, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(i%4-2)
	}
	return out
}

func TestEchoSuppressor_RecentPlaybackIsDetectedAsEcho(t *testing.T) {
	es := NewEchoSuppressor()
	played := tone(4000, 0, 0.5)
	es.RecordPlayed(played)

	if !es.IsEcho(played[1000:2000]) {
		t.Error("expected a verbatim slice of played audio to be flagged as echo")
	}
}

func TestEchoSuppressor_SilenceAfterPlaybackIsNotEcho(t *testing.T) {
	es := NewEchoSuppressor()
	es.silence = 0
	es.RecordPlayed(tone(4000, 0, 0.5))

	if es.IsEcho(tone(1000, 0, 0.5)) {
		t.Error("expected echo detection to expire once outside the silence window")
	}
}

func TestEchoSuppressor_DisabledNeverFlagsEcho(t *testing.T) {
	es := NewEchoSuppressor()
	es.RecordPlayed(tone(4000, 0, 0.5))
	es.SetEnabled(false)

	if es.IsEcho(tone(1000, 0, 0.5)) {
		t.Error("expected disabled suppressor to never flag echo")
	}
}

func TestEchoSuppressor_SilentInputIsNotEcho(t *testing.T) {
	es := NewEchoSuppressor()
	es.RecordPlayed(tone(4000, 0, 0.5))

	if es.IsEcho(make([]float32, 1000)) {
		t.Error("expected zero-energy input to never be flagged as echo")
	}
}

func TestEchoSuppressor_ClearBufferRemovesReference(t *testing.T) {
	es := NewEchoSuppressor()
	played := tone(4000, 0, 0.5)
	es.RecordPlayed(played)
	es.ClearBuffer()

	if es.IsEcho(played[1000:2000]) {
		t.Error("expected cleared buffer to drop prior echo reference")
	}
}

func TestEchoSuppressor_SetThresholdIgnoresOutOfRange(t *testing.T) {
	es := NewEchoSuppressor()
	es.SetThreshold(1.5)
	if es.threshold != 0.55 {
		t.Errorf("expected out-of-range threshold to be ignored, got %v", es.threshold)
	}
	es.SetThreshold(0.9)
	if es.threshold != 0.9 {
		t.Errorf("expected threshold to update to 0.9, got %v", es.threshold)
	}
}
