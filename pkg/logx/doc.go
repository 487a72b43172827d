// Package logx provides structured logging for daywatch on top of zerolog.
//
// Components receive a Logger by value; the backing Service owns the sinks
// (console, optional file) and can swap levels/outputs at runtime without
// invalidating loggers already handed out.
package logx
