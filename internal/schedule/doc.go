// Package schedule runs work at a point in time or on a cron cadence.
//
// The bot uses it to persist player sessions periodically and to leave voice
// channels that stayed idle. All waiting goes through a clock.Clock so tests
// can drive it with a mock.
package schedule
