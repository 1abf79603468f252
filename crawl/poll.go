package crawl

import (
	"errors"
	"time"
)

// ErrPollTimeout is returned when a condition never became true within its
// deadline.
var ErrPollTimeout = errors.New("poll timed out")

// Poll invokes check every interval until it returns true, an error, or
// timeout elapses. The first check happens immediately.
func Poll(check func() (bool, error), interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrPollTimeout
		}
		time.Sleep(interval)
	}
}
