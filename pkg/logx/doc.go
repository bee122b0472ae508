// Package logx is a thin zerolog wrapper.
//
// Loggers carry fixed fields and resolve their sink at write time, so a
// Service.Apply on config reload changes level, console and file output for
// every logger already handed out.
package logx
