package logging

import (
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PkgLevel represents log level of a package.
type PkgLevel struct {
	pkg string
	lvl byte
	al  zap.AtomicLevel
}

// Package returns package name.
func (pl *PkgLevel) Package() string {
	return pl.pkg
}

// Level returns log level as a letter.
func (pl *PkgLevel) Level() byte {
	return pl.lvl
}

// SetLevel assigns log level.
// Recognized letters are V/D (debug), I (info), W (warn), E (error), F/N (fatal only).
// Anything else selects info.
func (pl *PkgLevel) SetLevel(input string) {
	lvl, zl := byte('I'), zapcore.InfoLevel
	if len(input) > 0 {
		switch input[0] {
		case 'V', 'D':
			lvl, zl = input[0], zapcore.DebugLevel
		case 'I':
			lvl, zl = input[0], zapcore.InfoLevel
		case 'W':
			lvl, zl = input[0], zapcore.WarnLevel
		case 'E':
			lvl, zl = input[0], zapcore.ErrorLevel
		case 'F', 'N':
			lvl, zl = input[0], zapcore.DPanicLevel
		}
	}
	pl.lvl = lvl
	pl.al.SetLevel(zl)
}

var (
	pkgLevelsLock sync.Mutex
	pkgLevels     = map[string]*PkgLevel{}
)

// ListLevels returns all package levels, sorted by package name.
func ListLevels() (list []*PkgLevel) {
	pkgLevelsLock.Lock()
	defer pkgLevelsLock.Unlock()
	for _, pl := range pkgLevels {
		list = append(list, pl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].pkg < list[j].pkg })
	return list
}

// GetLevel finds or creates package log level object.
func GetLevel(pkg string) (pl *PkgLevel) {
	pkgLevelsLock.Lock()
	defer pkgLevelsLock.Unlock()
	pl = pkgLevels[pkg]
	if pl == nil {
		pl = &PkgLevel{
			pkg: pkg,
			al:  zap.NewAtomicLevel(),
		}
		pl.SetLevel(envLevel(pkg))
		pkgLevels[pkg] = pl
	}
	return pl
}

func envLevel(pkg string) string {
	v, ok := os.LookupEnv("UDPCORE_LOG_" + pkg)
	if !ok {
		v = os.Getenv("UDPCORE_LOG")
	}
	return v
}
