package mediation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nosdois/duet/internal/memory"
)

func TestBuildPrompt(t *testing.T) {
	turns := []memory.Turn{
		{Speaker: "Ana", Text: "você nunca me escuta"},
		{Speaker: "Bruno", Text: "de novo isso?"},
	}

	got := BuildPrompt(turns, "Ana", "Bruno")

	for _, want := range []string{
		"conflito entre Ana e Bruno",
		"Ana: você nunca me escuta",
		"Bruno: de novo isso?",
		"@Ana", "@Bruno",
		"Pessoal, percebo que os ânimos exaltaram.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_LimitsHistory(t *testing.T) {
	var turns []memory.Turn
	for i := 0; i < 8; i++ {
		turns = append(turns, memory.Turn{Speaker: "Ana", Text: fmt.Sprintf("msg %d", i)})
	}

	got := BuildPrompt(turns, "Ana", "Bruno")

	if strings.Contains(got, "msg 2") {
		t.Error("prompt includes turns older than the window")
	}
	if !strings.Contains(got, "msg 3") || !strings.Contains(got, "msg 7") {
		t.Error("prompt dropped turns inside the window")
	}
}

func TestBuildPrompt_EmptyHistory(t *testing.T) {
	got := BuildPrompt(nil, "Ana", "Bruno")
	if !strings.Contains(got, "conflito entre Ana e Bruno") {
		t.Error("prompt without history lost the partner names")
	}
}
