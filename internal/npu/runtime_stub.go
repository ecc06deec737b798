//go:build !axengine

package npu

import "errors"

// OpenDefault opens the vendor accelerator runtime. This build has no vendor
// SDK linked in; rebuild with -tags axengine on a target with the AX engine
// libraries installed.
func OpenDefault() (Runtime, error) {
	return nil, errors.New("npu: built without axengine support")
}
