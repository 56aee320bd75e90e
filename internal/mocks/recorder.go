// Package mocks provides mock implementations for testing.
package mocks

// Recorder collects calls from several mocks in the order they happen.
// Share one Recorder between mocks to assert on cross-collaborator ordering.
type Recorder struct {
	Calls []string
}

func (r *Recorder) record(call string) {
	if r != nil {
		r.Calls = append(r.Calls, call)
	}
}
