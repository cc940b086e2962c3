// Package ui provides terminal styling for sshp's output.
//
// Colors are ANSI codes so they degrade cleanly on limited terminals:
//
//	ColorSuccess (green)   - stdout lines, succeeded hosts
//	ColorError   (red)     - stderr lines, failed hosts
//	ColorWarning (yellow)  - timed out and signaled hosts
//	ColorInfo    (cyan)    - host names
//	ColorNumber  (magenta) - counts, exit codes, durations
//	ColorMuted   (gray)    - secondary text
//
// A Theme binds these to one output stream. Whether escapes are emitted is
// decided once, from the color mode and whether the stream is a terminal.
package ui
