// Package maintenance runs housekeeping tasks on a cron schedule, such as
// sweeping expired cache entries and idle rate limit buckets.
package maintenance
