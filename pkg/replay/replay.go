// Package replay drives a namespace from a YAML script of operations and
// checks each outcome against the expected one. It is used to reproduce
// cache traces and to exercise a configured namespace from the command
// line.
//
// A script looks like:
//
//	root: {device: 1, inode: 2, generation: 7}
//	steps:
//	  - {op: add, parent: {device: 1, inode: 2, generation: 7}, name: etc, child: {device: 1, inode: 9, generation: 1}}
//	  - {op: path, child: {device: 1, inode: 9, generation: 1}, want: /etc}
//	  - {op: remove, parent: {device: 1, inode: 2, generation: 7}, name: missing}
//	  - {op: gen, child: {device: 1, inode: 3}, expect: not_found}
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/internal/ratelimiter"
	"github.com/marmos91/dittofs-namespace/pkg/namespace"
)

// Op names a script operation.
type Op string

const (
	OpAdd         Op = "add"
	OpRemove      Op = "remove"
	OpRename      Op = "rename"
	OpPath        Op = "path"
	OpGen         Op = "gen"
	OpLookupCount Op = "lookup_count"
	OpCheck       Op = "check"
)

// expectOK is the expectation for a step that must succeed.
const expectOK = "ok"

// Node identifies an inode in a script. Generation is ignored where only
// the inode matters.
type Node struct {
	Device     uint64 `yaml:"device"`
	Inode      uint64 `yaml:"inode"`
	Generation uint32 `yaml:"generation"`
}

func (n Node) id() namespace.InodeID {
	return namespace.InodeID{Device: n.Device, Inode: n.Inode}
}

func (n Node) identity() namespace.Identity {
	return namespace.Identity{InodeID: n.id(), Generation: n.Generation}
}

// Step is one script operation.
type Step struct {
	Op Op `yaml:"op"`

	Parent Node   `yaml:"parent"`
	Name   string `yaml:"name"`

	// Child is the inode added, or the subject of path, gen and lookup_count.
	Child Node `yaml:"child"`

	// ToParent and ToName are the rename destination.
	ToParent Node   `yaml:"to_parent"`
	ToName   string `yaml:"to_name"`

	// Expect is "ok" (the default) or a namespace error code name such as
	// "stale" or "conflict".
	Expect string `yaml:"expect"`

	// Want is the expected result: a path, a generation or a count.
	Want string `yaml:"want"`
}

// Script is a decoded replay file.
type Script struct {
	// Root, when set, initializes the namespace before the first step.
	Root  *Node  `yaml:"root"`
	Steps []Step `yaml:"steps"`
}

// Load decodes a script, rejecting unknown fields and operations.
func Load(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}

	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

// LoadFile reads and decodes the script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	return Load(f)
}

func (s Step) validate() error {
	switch s.Op {
	case OpAdd, OpRemove, OpRename, OpPath, OpGen, OpLookupCount, OpCheck:
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	if s.Expect != "" && s.Expect != expectOK {
		if _, ok := namespace.ParseErrorCode(s.Expect); !ok {
			return fmt.Errorf("unknown expected outcome %q", s.Expect)
		}
	}
	return nil
}

// StepError reports a step whose outcome differs from its expectation.
type StepError struct {
	Index int
	Op    Op
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Report summarises a run.
type Report struct {
	Steps    int
	Failures []*StepError
}

// OK reports whether every step met its expectation.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Options tunes Run.
type Options struct {
	// StopOnFailure ends the run at the first mismatching step.
	StopOnFailure bool

	// Rate paces the run to this many steps per second. Zero runs
	// unthrottled.
	Rate uint
}

// Run executes the script against ns. Mismatches are collected in the
// report; the returned error is reserved for a cancelled context or a
// failed initialization.
func Run(ctx context.Context, ns *namespace.Namespace, s *Script, opts Options) (*Report, error) {
	if s.Root != nil {
		if _, err := ns.Initialize(s.Root.id(), s.Root.Generation); err != nil {
			return nil, fmt.Errorf("initialize root: %w", err)
		}
	}

	limiter := ratelimiter.New(opts.Rate, 1)

	report := &Report{}
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}

		report.Steps++
		if err := execute(ns, step); err != nil {
			serr := &StepError{Index: i + 1, Op: step.Op, Err: err}
			logger.Warn("replay: %v", serr)
			report.Failures = append(report.Failures, serr)
			if opts.StopOnFailure {
				break
			}
			continue
		}
		logger.Debug("replay: step %d (%s) ok", i+1, step.Op)
	}

	logger.Info("replay: %d steps, %d failures", report.Steps, len(report.Failures))
	return report, nil
}

// execute runs one step and compares its outcome.
func execute(ns *namespace.Namespace, s Step) error {
	var (
		got string
		err error
	)

	switch s.Op {
	case OpAdd:
		var gen uint32
		gen, err = ns.AddChild(s.Parent.identity(), s.Name, s.Child.id(), s.Child.Generation)
		got = strconv.FormatUint(uint64(gen), 10)
	case OpRemove:
		err = ns.RemoveChild(s.Parent.identity(), s.Name)
	case OpRename:
		err = ns.Rename(s.Parent.identity(), s.Name, s.ToParent.identity(), s.ToName)
	case OpPath:
		got, err = ns.ReconstructPath(s.Child.identity())
	case OpGen:
		var gen uint32
		gen, err = ns.GetGeneration(s.Child.id())
		got = strconv.FormatUint(uint64(gen), 10)
	case OpLookupCount:
		var n uint32
		n, err = ns.LookupCount(s.Child.id())
		got = strconv.FormatUint(uint64(n), 10)
	case OpCheck:
		err = ns.CheckInvariants()
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}

	return compare(s, got, err)
}

func compare(s Step, got string, err error) error {
	want := s.Expect
	if want == "" {
		want = expectOK
	}

	outcome := expectOK
	if err != nil {
		code, ok := namespace.CodeOf(err)
		if !ok {
			return fmt.Errorf("unexpected failure: %w", err)
		}
		outcome = code.String()
	}

	if outcome != want {
		if err != nil {
			return fmt.Errorf("got %s, expected %s: %w", outcome, want, err)
		}
		return fmt.Errorf("got %s, expected %s", outcome, want)
	}
	if err == nil && s.Want != "" && got != s.Want {
		return fmt.Errorf("got %q, want %q", got, s.Want)
	}
	return nil
}
