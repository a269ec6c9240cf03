package workflow

import (
	"sort"
	"testing"
)

type lightState string
type lightCommand string

func lightTable() *Table[lightState, lightCommand] {
	return NewTable("light",
		[]lightState{"off", "on", "broken"},
		[]lightState{"broken"},
		Transition[lightState, lightCommand]{From: "off", Command: "switch", To: "on", EventType: "light_on"},
		Transition[lightState, lightCommand]{From: "on", Command: "switch", To: "off", EventType: "light_off"},
		Transition[lightState, lightCommand]{From: "on", Command: "smash", To: "broken"},
		Transition[lightState, lightCommand]{From: "off", Command: "smash", To: "broken"},
	)
}

func TestNext(t *testing.T) {
	table := lightTable()
	row, ok := table.Next("off", "switch")
	if !ok || row.To != "on" {
		t.Fatalf("expected off -> on, got %#v (ok=%v)", row, ok)
	}
	if row.EventType != "light_on" {
		t.Fatalf("unexpected event type %q", row.EventType)
	}
	if _, ok := table.Next(" ON ", "Switch"); !ok {
		t.Fatalf("expected normalized lookup to match")
	}
}

func TestTerminalRejectsEverything(t *testing.T) {
	table := lightTable()
	if !table.IsTerminal("broken") {
		t.Fatalf("expected broken to be terminal")
	}
	for _, cmd := range []lightCommand{"switch", "smash"} {
		if table.CanApply("broken", cmd) {
			t.Fatalf("expected %s to be rejected from broken", cmd)
		}
	}
	if len(table.Commands("broken")) != 0 {
		t.Fatalf("expected no commands from terminal state")
	}
}

func TestCommands(t *testing.T) {
	got := lightTable().Commands("on")
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 2 || got[0] != "smash" || got[1] != "switch" {
		t.Fatalf("unexpected commands: %#v", got)
	}
}

func TestValid(t *testing.T) {
	table := lightTable()
	if !table.Valid("on") || table.Valid("dimmed") {
		t.Fatalf("unexpected validity result")
	}
}

func TestTerminalWithOutgoingPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for terminal state with outgoing transition")
		}
	}()
	NewTable("bad",
		[]lightState{"a", "b"},
		[]lightState{"a"},
		Transition[lightState, lightCommand]{From: "a", Command: "go", To: "b"},
	)
}
