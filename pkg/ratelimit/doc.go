// Package ratelimit provides rate limiting for upstream Instagram API calls.
//
// The token bucket limiter gates profile and feed lookups so a burst of
// searches never turns into a burst of upstream requests.
//
// Interface:
//
// All rate limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed
//   - Wait(ctx) error - Block until a request is allowed or ctx is cancelled
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// 60 requests per minute
//	limiter := ratelimit.NewTokenBucket(60, time.Minute)
//
//	if !limiter.Allow() {
//	    if err := limiter.Wait(ctx); err != nil {
//	        return err
//	    }
//	}
//	// Proceed with request
package ratelimit
