// Package ratelimit paces outbound media downloads and page scrapes.
//
// The timeline endpoint itself is paced by the poll interval; this package
// keeps the side-fetches started by each cycle from bursting:
//
//	limiter := ratelimit.NewPerMinute(cfg.Download.RequestsPerMinute, cfg.Download.ConcurrentDownloads)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
