// Package lock provides named leases used as critical sections across
// processes.
//
// A Locker stores leases; Acquire polls it until the lease is granted, the
// acquisition window closes or the context is cancelled:
//
//	guard, err := lock.Acquire(ctx, locker, "upload:/f/7/report.pdf", requestID,
//		lock.WithTimeout(10*time.Second),
//		lock.WithTTL(time.Minute),
//	)
//	if errors.Is(err, lock.ErrTimeout) {
//		return ErrBusy
//	}
//	defer guard.Release(context.WithoutCancel(ctx))
//
// RedisLocker shares leases between processes; MemoryLocker serves tests and
// single-instance deployments. Leases expire after their TTL so a crashed
// holder never blocks a key forever.
package lock
