// Package scheduler runs named recurring jobs on 5-field cron expressions.
//
// Each name owns at most one live schedule: installing a schedule for a name
// that is already armed cancels the old timer before arming the new one, so
// hot re-installs never leave duplicate timers behind. A failing (or
// panicking) tick is logged and the schedule stays armed for the next cron
// boundary.
package scheduler
