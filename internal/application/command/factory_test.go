package command

import (
	"encoding/json"
	"testing"

	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/testutil"
)

func TestFactory_Register(t *testing.T) {
	f := NewFactory()
	noop := func(json.RawMessage) (command.Command, error) { return &counterCmd{target: &counter{}}, nil }

	testutil.AssertError(t, f.Register("", noop))
	testutil.AssertError(t, f.Register("x", nil))

	testutil.AssertNoError(t, f.Register("b", noop))
	testutil.AssertNoError(t, f.Register("a", noop))
	testutil.AssertNoError(t, f.Register("b", noop))

	kinds := f.Kinds()
	if len(kinds) != 2 || kinds[0] != "b" || kinds[1] != "a" {
		t.Errorf("Kinds() = %v, want [b a]", kinds)
	}

	cmd, err := f.Build(command.Spec{Kind: "a"})
	testutil.AssertNoError(t, err)
	if cmd == nil {
		t.Fatal("Build() returned nil command")
	}
}

func TestBoundedStack(t *testing.T) {
	s := newBoundedStack(3)
	for i := 1; i <= 5; i++ {
		s.push(record{kind: command.Kind(string(rune('0' + i)))})
	}
	testutil.AssertEqual(t, s.len(), 3)

	var got []command.Kind
	for {
		r, ok := s.pop()
		if !ok {
			break
		}
		got = append(got, r.kind)
	}
	want := []command.Kind{"5", "4", "3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}
