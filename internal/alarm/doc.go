// Package alarm provides the ward-wide Alarm Coordinator for WardWatch.
//
// The ward has a single audible alarm. Any bracelet emergency raises
// it; raising it again while it sounds changes nothing. Silencing it
// stops the sounder and clears every per-device emergency flag in one
// motion, because ward staff acknowledge the ward, not individual
// wrists.
//
// The Coordinator owns the IDLE/ACTIVE state machine and fans alarm
// lifecycle events out through a Notifier. The audible side is behind
// the Beeper interface; ConsoleBeeper drives the terminal bell and
// NoopBeeper keeps tests and headless deployments quiet.
package alarm
