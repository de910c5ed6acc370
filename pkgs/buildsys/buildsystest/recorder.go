// Package buildsystest provides a buildsys.Runner that records tool
// invocations instead of spawning processes.
package buildsystest

import (
	"context"
	"os"
	"strings"

	"github.com/goplus/cbt/pkgs/buildsys"
)

// Call is one recorded tool invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Output returns the argument following "-o", or "".
func (c Call) Output() string {
	for i, a := range c.Args {
		if a == "-o" && i+1 < len(c.Args) {
			return c.Args[i+1]
		}
	}
	return ""
}

func (c Call) String() string {
	return buildsys.CommandLine(c.Name, c.Args)
}

// Recorder records every Run and, like a real tool, creates the file named
// by "-o" so timestamp checks see it on the next run.
type Recorder struct {
	Calls []Call

	// Fail, when set, decides whether a call fails. The output file is not
	// written for failing calls.
	Fail func(c Call) error
}

var _ buildsys.Runner = (*Recorder)(nil)

func (r *Recorder) Run(ctx context.Context, dir, name string, args ...string) error {
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	r.Calls = append(r.Calls, c)
	if r.Fail != nil {
		if err := r.Fail(c); err != nil {
			return err
		}
	}
	if out := c.Output(); out != "" {
		return os.WriteFile(out, []byte(c.String()+"\n"), 0644)
	}
	return nil
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.Calls = nil
}

// Outputs returns the "-o" argument of every recorded call.
func (r *Recorder) Outputs() []string {
	outs := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		outs = append(outs, c.Output())
	}
	return outs
}

// Tools returns the program name of every recorded call.
func (r *Recorder) Tools() string {
	names := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		names = append(names, c.Name)
	}
	return strings.Join(names, " ")
}
