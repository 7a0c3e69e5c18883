// Package mock provides test doubles for buildwarden components.
//
// MockClock drives bounded waits without real sleeping: Sleep advances the
// clock and records the requested duration.
//
// FakeWorkload is an in-memory remote workload that implements
// api.RemoteWorkloadClient and api.SystemMessenger. It records every call so
// tests can assert on ordering, call counts and the absence of mutations:
//
//	fake := mock.NewFakeWorkload([]string{"a (1) => []"}, "w1", "w2")
//	fake.DeregisterErr = map[string]error{"w2": errors.New("boom")}
//	...
//	assert.Zero(t, fake.MutationCount())
package mock
