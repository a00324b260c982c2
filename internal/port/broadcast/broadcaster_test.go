package broadcast

import (
	"context"
	"testing"
)

type recorder struct{ types []string }

func (r *recorder) BroadcastEvent(_ context.Context, eventType string, _ any) {
	r.types = append(r.types, eventType)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, Nop{}, b}

	m.BroadcastEvent(context.Background(), "agent.updated", nil)

	if len(a.types) != 1 || len(b.types) != 1 {
		t.Fatalf("expected both recorders to receive one event, got %v / %v", a.types, b.types)
	}
}
