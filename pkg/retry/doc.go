// Package retry provides backoff and retry logic for transient failures in
// timeline fetches and media downloads.
//
// Only errors classified by twarchive/pkg/errors as network, rate limit or
// server errors are retried by default. Auth failures and anything
// unclassified fail immediately.
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		_, err := client.FetchLatest(ctx, 15)
//		return err
//	}, &retry.Config{MaxAttempts: 3, Logger: log})
//
// When Config.Backoff is nil the delay is picked from the error type:
// rate limit errors wait tens of seconds, network errors about one second.
// Waits are abandoned when ctx is cancelled.
package retry
