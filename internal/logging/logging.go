// Package logging provides the process-wide structured logger: a single
// package-level *zap.SugaredLogger swapped out at startup by Init, so
// callers never thread a logger through constructors.
package logging

import (
	"go.uber.org/zap"
)

// L is the active logger. It defaults to a development logger so tests and
// "go run" invocations produce readable output without any setup; Init
// replaces it for production use.
var L *zap.SugaredLogger

func init() {
	z, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on a broken encoder/sink config,
		// which can't happen with the defaults used here.
		panic(err)
	}
	L = z.Sugar()
}

// Init replaces the package logger with one appropriate for production
// (JSON encoding) or development (console encoding), and returns a flush
// func the caller should defer. level sets the minimum level when it parses;
// otherwise the mode's default applies (info for production, debug for
// development).
func Init(production bool, level string) (func(), error) {
	var zc zap.Config
	if production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zc.Level = lvl
	}

	z, err := zc.Build()
	if err != nil {
		return func() {}, err
	}
	L = z.Sugar()
	return func() { _ = z.Sync() }, nil
}
