// Package procdump provides debug-level error-chain introspection, adapted
// from the teacher's pkg/fmtt (PrintErrChainDebug): walk the Unwrap chain,
// spew.Dump each layer, and surface struct fields reflectively. Used by the
// ErrorBridge's debug logging path instead of the teacher's stdout prints.
package procdump

import (
	"errors"
	"reflect"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

// Chain logs each layer of err's Unwrap chain at debug level, including a
// spew dump of the error value and its exported struct fields.
func Chain(log *zap.Logger, err error) {
	if err == nil {
		return
	}

	for i := 0; err != nil; err = errors.Unwrap(err) {
		log.Debug("error chain layer",
			zap.Int("depth", i),
			zap.String("type", reflect.TypeOf(err).String()),
			zap.String("error", err.Error()),
			zap.String("dump", spew.Sdump(err)),
		)

		rv := reflect.ValueOf(err)
		rt := reflect.TypeOf(err)
		if rt.Kind() == reflect.Ptr {
			rv = rv.Elem()
			rt = rt.Elem()
		}
		if rt.Kind() == reflect.Struct {
			for j := 0; j < rt.NumField(); j++ {
				f := rt.Field(j)
				v := rv.Field(j)
				if v.CanInterface() {
					log.Debug("error chain field", zap.Int("depth", i), zap.String("field", f.Name), zap.Any("value", v.Interface()))
				}
			}
		}
		i++
	}
}
