// Package pool implements bounded pools of expensive, reusable objects such
// as database connections. Objects are produced and torn down by an
// ObjectFactory; pools only decide when.
//
// # Pools
//
//   - SingleObjectPool holds at most one object, guarded by a FIFO binary
//     semaphore. It is used for the primary (writer) connection.
//   - CommonObjectPool holds up to MaxTotal objects. Idle objects are reused
//     most-recently-returned first, borrowers may ask for an object that
//     matches a key, and blocked borrowers are served in arrival order. When
//     it is saturated it may overflow into a SingleObjectPool.
//   - TieredObjectPool routes between a primary SingleObjectPool and a
//     secondary pool based on what the caller asks for and on
//     PooledObject.IsPrimary when objects come back.
//
// # Eviction
//
// Idle objects are reclaimed by a periodic task registered with a Scheduler
// when the first object is created. A CommonObjectPool uses a two-pass tag
// scheme: returning an object stamps it with the pool's current tag, and
// every sweep flips the pool's tag after removing idle objects whose tag
// differs. An object idle across two consecutive sweeps is therefore
// destroyed, while one borrowed in between survives. A SingleObjectPool does
// the same with a single flag.
//
// # Cancellation and shutdown
//
// Borrowing blocks until an object is available, the caller's context is
// done, or the pool is closed. Close wakes every blocked borrower with
// errors.ErrPoolClosed, destroys idle objects immediately and borrowed ones
// as they come back, and finally closes the factory.
//
// Usage:
//
//	p, err := pool.NewCommonObjectPool[string, *Conn](factory, scheduler,
//	    pool.Configuration{MaxTotal: 4, EvictionDelay: time.Minute, EvictionInterval: time.Minute},
//	    pool.WithLogger(log), pool.WithName("replicas"))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	conn, err := p.BorrowObjectWithKey(ctx, query)
//	if err != nil {
//	    return err
//	}
//	defer p.ReturnObject(conn)
package pool
