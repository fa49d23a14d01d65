// Package calendar supplies the content slots the scheduler turns into
// jobs. A calendar lists one-off entries by date and recurring entries by
// weekday, each with a publish time in the calendar's timezone.
package calendar
