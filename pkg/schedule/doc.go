// Package schedule maps wall-clock instants to job types.
//
// This package includes:
//   - Schedule interface backed by five-field cron expressions
//   - Window, one row of the statically declared trigger table
//   - Resolver, the pure function from (instant, manual override) to a Resolution
//
// Windows are matched minute-exact in the resolver's home timezone and
// evaluated top to bottom. An instant that matches no window is an error,
// never a default guess.
package schedule
