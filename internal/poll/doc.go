// Package poll provides the bounded wait used by the reconcilers to wait for
// plugin downloads to settle and for the remote workload to drain and come back
// after a restart.
//
// Waiting is plain polling: the predicate is evaluated, the caller sleeps for
// the interval, and the cycle repeats until the predicate holds or the timeout
// is exceeded. Time is taken from an injectable Clock so tests never sleep.
//
//	err := poll.UntilTrue(ctx, poll.Poller{
//		Timeout:  10 * time.Minute,
//		Interval: time.Second,
//		Kind:     api.WaitRestartDrain,
//	}, client.IsDrained)
package poll
