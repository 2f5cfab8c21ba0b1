// Package rcl holds the pieces shared by the event, wait set and security
// packages: the error taxonomy, the owning Context and the contracts that
// waitable entities satisfy.
//
// Errors are plain values. Expected outcomes (ErrEventTakeFailed, ErrTimeout,
// ErrNotFound) are returned like any other error and callers branch on them
// with errors.Is:
//
//	err := ws.Wait(100 * time.Millisecond)
//	switch {
//	case errors.Is(err, rcl.ErrTimeout):
//		continue
//	case errors.Is(err, rcl.ErrShutdown):
//		return nil
//	case err != nil:
//		return err
//	}
package rcl
