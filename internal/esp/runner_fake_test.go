package esp

import "context"

type runCall struct {
	name string
	args []string
}

// fakeRunner replays results in order and repeats the last one.
type fakeRunner struct {
	results  []Result
	runCalls []runCall
	onRun    func(name string, args []string)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) Result {
	copied := append([]string(nil), args...)
	f.runCalls = append(f.runCalls, runCall{name: name, args: copied})
	if f.onRun != nil {
		f.onRun(name, copied)
	}
	if len(f.results) == 0 {
		return Result{}
	}
	i := len(f.runCalls) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}
