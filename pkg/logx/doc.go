// Package logx configures rosterbot's structured logging.
//
// logx.Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - the optional file sink is JSON, one entry per line
//   - Service.Apply swaps sinks and level at runtime (config reload)
package logx
