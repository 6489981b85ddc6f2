package smc

import (
	"fmt"
	"time"
)

// poll calls cond every interval until it reports true, returns an error,
// or timeout has passed. cond is always called at least once.
func poll(op string, timeout, interval time.Duration, cond func() (bool, error)) error {
	start := time.Now()

	for {
		done, err := cond()
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		if time.Since(start) >= timeout {
			return fmt.Errorf("%w: %v did not complete within %v", ErrTimeout, op, timeout)
		}

		time.Sleep(interval)
	}
}
