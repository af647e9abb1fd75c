// Package checker polls the supervisor health service and reacts when a zone
// starts alarming, either by failing a one-shot check or by running a hook.
package checker
