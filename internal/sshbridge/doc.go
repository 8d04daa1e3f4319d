// Package sshbridge connects a browser WebSocket to an SSH shell using the
// session descriptor stored for that browser.
//
// It wraps golang.org/x/crypto/ssh. The descriptor chooses the target, the
// algorithm preferences, the PTY terminal type, keepalive cadence and
// logging flags; credentials come from the configured default user or from
// the HTTP basic-auth credentials kept in the session.
//
// # Wire format
//
// Server to browser:
//   - binary frames carry raw shell output.
//   - text frames carry JSON events {"event": name, "data": value}:
//     setTerminalOpts, title, header, footer, allowreplay, allowreauth,
//     status and ssherror.
//
// Browser to server:
//   - binary frames are written to the shell's stdin.
//   - text frames are JSON control messages:
//     {"type":"resize","cols":C,"rows":R} and
//     {"type":"control","data":"replayCredentials"}.
//
// # Security
//
//   - Target restriction: [CheckTarget] refuses hosts outside the
//     descriptor's allowedSubnets.
//   - Input size limit: [MaxInputMessageSize] (64 KB).
//   - Terminal dimensions: capped at [MaxResizeCols] x [MaxResizeRows].
//   - Input rate limiting: [InputRateLimit] messages/s with an
//     [InputRateBurst] burst, via golang.org/x/time/rate.
//   - Host keys: with verification on, [KnownHosts] pins the first key seen
//     for each target and refuses later changes.
package sshbridge
