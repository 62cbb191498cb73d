// Package lifecycle drives a sandbox container between its runtime states.
//
// The Controller owns every state transition cibox performs: it creates a
// container only when asked, boots it and waits for it to be usable, and
// stops or destroys it with a graceful shutdown fallback.
//
// Usage:
//
//	ctrl := lifecycle.NewController(logger, lifecycle.DefaultConfig(),
//	    lifecycle.WithProgress(lifecycle.NewSpinner(os.Stdout)))
//
//	if _, err := ctrl.Create(ctx, h, spec); err != nil {
//	    return err
//	}
//	addrs, err := ctrl.EnsureRunning(ctx, h)
//	if err != nil {
//	    return err // errors.ErrNotFound or errors.ErrNetworkUnavailable
//	}
//	defer ctrl.Destroy(ctx, h)
//
// State transitions:
//
//	undefined --Create--> stopped
//	stopped --EnsureRunning--> starting --(poll)--> running --(address)--> usable
//	running --Stop--> stopping --(shutdown within budget)--> stopped
//	stopped --Destroy--> destroyed
package lifecycle
