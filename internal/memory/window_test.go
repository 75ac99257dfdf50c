package memory

import (
	"fmt"
	"sync"
	"testing"
)

func TestWindow_AppendAndTurns(t *testing.T) {
	t.Parallel()
	w := NewWindow(10)

	w.AppendExchange("what is chapter one about?", "it introduces the topic")

	turns := w.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns after one exchange, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "what is chapter one about?" {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Text != "it introduces the topic" {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	t.Parallel()
	w := NewWindow(4)

	for i := 1; i <= 4; i++ {
		w.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	turns := w.Turns()
	if len(turns) != 4 {
		t.Fatalf("expected window capped at 4, got %d", len(turns))
	}
	// Exchanges 1 and 2 evicted; 3 and 4 retained in chronological order.
	want := []string{"q3", "a3", "q4", "a4"}
	for i, text := range want {
		if turns[i].Text != text {
			t.Errorf("turns[%d]: got %q, want %q", i, turns[i].Text, text)
		}
	}
}

func TestWindow_ElevenExchangesKeepsFiveMostRecent(t *testing.T) {
	t.Parallel()
	w := NewWindow(DefaultWindowSize)

	for i := 1; i <= 11; i++ {
		w.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	turns := w.Turns()
	if len(turns) != DefaultWindowSize {
		t.Fatalf("expected %d turns, got %d", DefaultWindowSize, len(turns))
	}
	if turns[0].Text != "q7" {
		t.Errorf("oldest retained turn: got %q, want q7", turns[0].Text)
	}
	if turns[len(turns)-1].Text != "a11" {
		t.Errorf("newest turn: got %q, want a11", turns[len(turns)-1].Text)
	}
}

func TestWindow_DefaultSize(t *testing.T) {
	t.Parallel()
	w := NewWindow(0)
	if w.Max() != DefaultWindowSize {
		t.Errorf("expected default max %d, got %d", DefaultWindowSize, w.Max())
	}

	for i := 0; i < DefaultWindowSize+5; i++ {
		w.Append(RoleUser, "q")
	}
	if w.Len() != DefaultWindowSize {
		t.Errorf("expected %d turns after overflow, got %d", DefaultWindowSize, w.Len())
	}
}

func TestWindow_Reset(t *testing.T) {
	t.Parallel()
	w := NewWindow(6)
	w.AppendExchange("q", "a")
	w.Reset()
	if w.Len() != 0 {
		t.Errorf("expected empty window after reset, got %d turns", w.Len())
	}
}

func TestWindow_TurnsReturnsCopy(t *testing.T) {
	t.Parallel()
	w := NewWindow(6)
	w.Append(RoleUser, "original")

	turns := w.Turns()
	turns[0].Text = "mutated"

	if got := w.Turns()[0].Text; got != "original" {
		t.Errorf("internal state mutated through returned slice: %q", got)
	}
}

func TestWindow_ConcurrentAppend(t *testing.T) {
	t.Parallel()
	w := NewWindow(10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.AppendExchange(fmt.Sprintf("q%d", n), "a")
		}(i)
	}
	wg.Wait()

	if w.Len() != 10 {
		t.Errorf("expected window capped at 10 after concurrent appends, got %d", w.Len())
	}
}
