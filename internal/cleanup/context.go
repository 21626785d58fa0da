/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package cleanup runs teardown work for a probe run.
package cleanup

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a whole teardown: unmounts, loop detach and temp
// dir removal.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned by Do when teardown outlived its deadline.
var ErrTimeout = errors.New("cleanup deadline exceeded")

// Do runs do with a context that keeps the values of ctx but not its
// cancellation, and that expires after timeout (DefaultTimeout when zero).
// It returns ErrTimeout if the deadline passed before do returned.
func Do(ctx context.Context, timeout time.Duration, do func(context.Context)) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeoutCause(context.WithoutCancel(ctx), timeout, ErrTimeout)
	defer cancel()

	do(ctx)
	return context.Cause(ctx)
}
