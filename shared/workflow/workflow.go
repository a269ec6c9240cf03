package workflow

import "strings"

// Transition is one row of a state machine: applying Command in From moves to To.
type Transition[S ~string, C ~string] struct {
	From      S
	Command   C
	To        S
	EventType string
}

// Table is an explicit (state, command) -> state lookup. Pairs not in the table are rejected.
type Table[S ~string, C ~string] struct {
	next     map[S]map[C]Transition[S, C]
	terminal map[S]bool
	states   []S
}

func NewTable[S ~string, C ~string](name string, states []S, terminal []S, rows ...Transition[S, C]) *Table[S, C] {
	t := &Table[S, C]{
		next:     make(map[S]map[C]Transition[S, C], len(states)),
		terminal: make(map[S]bool, len(terminal)),
		states:   append([]S(nil), states...),
	}
	for _, s := range terminal {
		t.terminal[s] = true
	}
	for _, row := range rows {
		if t.terminal[row.From] {
			panic("workflow: " + name + ": terminal state " + string(row.From) + " has outgoing transition")
		}
		byCmd := t.next[row.From]
		if byCmd == nil {
			byCmd = make(map[C]Transition[S, C])
			t.next[row.From] = byCmd
		}
		byCmd[row.Command] = row
	}
	return t
}

// Next returns the target state for cmd applied in from.
func (t *Table[S, C]) Next(from S, cmd C) (Transition[S, C], bool) {
	row, ok := t.next[Normalize(from)][Normalize(cmd)]
	return row, ok
}

func (t *Table[S, C]) CanApply(from S, cmd C) bool {
	_, ok := t.Next(from, cmd)
	return ok
}

func (t *Table[S, C]) IsTerminal(s S) bool {
	return t.terminal[Normalize(s)]
}

func (t *Table[S, C]) Valid(s S) bool {
	s = Normalize(s)
	for _, known := range t.states {
		if known == s {
			return true
		}
	}
	return false
}

func (t *Table[S, C]) States() []S {
	return append([]S(nil), t.states...)
}

// Commands lists the commands accepted in from.
func (t *Table[S, C]) Commands(from S) []C {
	byCmd := t.next[Normalize(from)]
	out := make([]C, 0, len(byCmd))
	for cmd := range byCmd {
		out = append(out, cmd)
	}
	return out
}

func Normalize[T ~string](v T) T {
	return T(strings.ToLower(strings.TrimSpace(string(v))))
}
