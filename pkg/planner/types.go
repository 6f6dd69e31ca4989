package planner

import (
	"fmt"
	"log/slog"

	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
)

type Operation int

const (
	OpAdd Operation = iota
	OpOverwrite
	OpDelete
	OpKeep
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpOverwrite:
		return "overwrite"
	case OpDelete:
		return "delete"
	case OpKeep:
		return "keep"
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Action is one planned operation. Record is the source record for Add and
// Overwrite, and the destination record for Delete and Keep.
type Action struct {
	Operation Operation
	Record    storage.Record
}

func (a Action) String() string {
	return a.Operation.String() + "(" + a.Record.Key + ")"
}

func Add(rec storage.Record) Action       { return Action{Operation: OpAdd, Record: rec} }
func Overwrite(rec storage.Record) Action { return Action{Operation: OpOverwrite, Record: rec} }
func Delete(rec storage.Record) Action    { return Action{Operation: OpDelete, Record: rec} }
func Keep(rec storage.Record) Action      { return Action{Operation: OpKeep, Record: rec} }

// EqualityPolicy reports whether dst already holds src.
type EqualityPolicy func(src, dst storage.Record) bool

type Options struct {
	// Excludes are doublestar patterns matched against keys on both sides.
	Excludes []string
	// NoDelete keeps destination-only keys instead of deleting them.
	NoDelete bool
	// Policy defaults to Fresh.
	Policy EqualityPolicy
	Logger *slog.Logger
}

type Summary struct {
	Add       int
	Overwrite int
	Delete    int
	Keep      int
	// Bytes is the payload size of all Add and Overwrite actions.
	Bytes int64
}

func Summarize(actions []Action) Summary {
	var s Summary
	for _, a := range actions {
		switch a.Operation {
		case OpAdd:
			s.Add++
			s.Bytes += a.Record.Size
		case OpOverwrite:
			s.Overwrite++
			s.Bytes += a.Record.Size
		case OpDelete:
			s.Delete++
		case OpKeep:
			s.Keep++
		}
	}
	return s
}

// Changes is the number of actions that perform I/O.
func (s Summary) Changes() int {
	return s.Add + s.Overwrite + s.Delete
}
