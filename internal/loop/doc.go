// Package loop implements the single logical thread of control shared by all
// zones of a process.
//
// Every state transition, rule evaluation and timer callback is posted to a
// Loop and executed serially by its Run goroutine, so zone code never needs
// locks. Timers created with AfterFunc re-enter the loop when they fire.
package loop
