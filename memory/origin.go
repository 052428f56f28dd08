// File: memory/origin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package memory

import (
	"path/filepath"
	"runtime"

	"github.com/momentics/hioload-rt/api"
)

// CallerOrigin describes the caller skip frames above CallerOrigin itself.
func CallerOrigin(skip int) api.Origin {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return api.Origin{}
	}
	o := api.Origin{File: filepath.Base(file), Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		o.Function = fn.Name()
	}
	return o
}

// Typed returns o labelled with a type name.
func Typed(o api.Origin, typeName string) api.Origin {
	o.TypeName = typeName
	return o
}
