package progress

import (
	"testing"
)

func TestSink_EmitReceiveOrder(t *testing.T) {
	sink := NewSink()

	sink.Emit(Text("supervisor", "processing"))
	sink.Emit(ToolStart("supervisor", "weather", `{"query":"Tokyo"}`))
	sink.Emit(ToolEnd("supervisor", "weather", true))
	sink.Emit(Final("done"))
	sink.Close()

	var got []EventType
	for event := range sink.Events() {
		got = append(got, event.Type)
	}

	want := []EventType{EventText, EventToolStart, EventToolEnd, EventFinal}
	if len(got) != len(want) {
		t.Fatalf("received %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSink_CloseIdempotent(t *testing.T) {
	sink := NewSink()
	sink.Close()
	sink.Close()

	if _, open := <-sink.Events(); open {
		t.Error("Events() channel still open after Close")
	}
}

func TestSink_EmitAfterCloseIsNoOp(t *testing.T) {
	sink := NewSink()
	sink.Close()
	sink.Emit(Final("late"))
}

func TestDiscard(t *testing.T) {
	sink := Discard()
	for i := 0; i < sinkBuffer*2; i++ {
		sink.Emit(Text("x", "y"))
	}
	sink.Close()
}
