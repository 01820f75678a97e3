// Package gps provides a minimal NMEA reader for serial GNSS receivers.
//
// The radio loop needs three things from it:
//   - UTC time and date, from RMC (GGA carries time only)
//   - fix validity and position, for the slot schedule and the regional plan
//   - the monotonic instant each time-bearing sentence was committed, which
//     anchors the slot schedule when no PPS edge is available
package gps
