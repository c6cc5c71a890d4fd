package command

import (
	"github.com/jbctechsolutions/projectgate/internal/domain/command"
)

// record is a command on a stack together with the kind it was built from.
type record struct {
	kind command.Kind
	cmd  command.Command
}

// boundedStack is a LIFO that silently drops its oldest entry when a push
// would exceed max.
type boundedStack struct {
	items []record
	max   int
}

func newBoundedStack(max int) boundedStack {
	return boundedStack{items: make([]record, 0, max), max: max}
}

func (s *boundedStack) push(r record) {
	if len(s.items) == s.max {
		copy(s.items, s.items[1:])
		s.items[len(s.items)-1] = record{}
		s.items = s.items[:len(s.items)-1]
	}
	s.items = append(s.items, r)
}

func (s *boundedStack) peek() (record, bool) {
	if len(s.items) == 0 {
		return record{}, false
	}
	return s.items[len(s.items)-1], true
}

func (s *boundedStack) pop() (record, bool) {
	r, ok := s.peek()
	if ok {
		s.items[len(s.items)-1] = record{}
		s.items = s.items[:len(s.items)-1]
	}
	return r, ok
}

func (s *boundedStack) clear() {
	clear(s.items)
	s.items = s.items[:0]
}

func (s *boundedStack) len() int {
	return len(s.items)
}
