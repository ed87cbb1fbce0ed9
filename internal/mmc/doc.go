// Package mmc normalizes sector reads against an optical drive.
//
// The physical transport lives behind Backend: one method per command family
// (READ CD, READ(16/12/10/6), a vendor CD-DA read and SET CD SPEED), each
// returning the payload, raw sense bytes, a success flag and the command
// duration. A drive refusing a command is an expected outcome and is reported
// through Result.OK and Result.Sense, never as a Go error.
//
// Facade binds an ordered list of capability-gated strategies once per
// session and dispatches every Read to the first strategy that admits the
// request. Probe discovers those capabilities by progressive fallback.
package mmc
