//go:build !windows

package module

/*
#cgo LDFLAGS: -ldl
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sensorhost/sensorhost/internal/apperr"
)

// callbackRegistry maps an opaque uintptr token (passed as the C ctx
// pointer) back to the Go-side receiver for a single in-flight callback.
// Needed because cgo cannot pass a Go closure across the FFI boundary as a
// C function pointer -- only the two package-level trampolines below can
// be registered with a driver, so each call routes through this registry
// to find out which Go state it belongs to.
var callbackRegistry = struct {
	sync.Mutex
	next    uintptr
	pending map[uintptr]any // *metadataSink or *messageSink
}{pending: make(map[uintptr]any)}

func registerCallback(v any) uintptr {
	callbackRegistry.Lock()
	defer callbackRegistry.Unlock()
	callbackRegistry.next++
	tok := callbackRegistry.next
	callbackRegistry.pending[tok] = v
	return tok
}

func unregisterCallback(tok uintptr) {
	callbackRegistry.Lock()
	defer callbackRegistry.Unlock()
	delete(callbackRegistry.pending, tok)
}

func lookupCallback(tok uintptr) any {
	callbackRegistry.Lock()
	defer callbackRegistry.Unlock()
	return callbackRegistry.pending[tok]
}

// metadataSink receives the single synchronous payload a metadata callback
// (obtain_*) delivers. kind selects which decode path runs.
type metadataSink struct {
	kind    string // "conn_info", "conf_info", "sensor_types"
	connOut []ConnParamDescriptor
	confOut []ConfigInfo
	typesOut []SensorTypeInfo
}

//export goMetadataTrampoline
func goMetadataTrampoline(ctx unsafe.Pointer, payload unsafe.Pointer) {
	tok := uintptr(ctx)
	v := lookupCallback(tok)
	sink, ok := v.(*metadataSink)
	if !ok || sink == nil {
		return
	}
	// The host must fully copy everything reachable from payload before
	// this function returns; the driver's buffers are invalid afterward
	// (spec.md M2). Decoding happens eagerly into Go-owned values.
	switch sink.kind {
	case "conn_info":
		list := (*C.mod_conn_param_list)(payload)
		sink.connOut = decodeConnParamList(list)
	case "conf_info":
		tree := (*C.mod_config_tree)(payload)
		sink.confOut = decodeConfigTree(tree)
	case "sensor_types":
		list := (*C.mod_sensor_type_list)(payload)
		sink.typesOut = decodeSensorTypeList(list)
	}
}

// messageSink bridges the asynchronous message callback to the Go-level
// sink function installed by Start. It must be heap-allocated and kept
// alive for the lifetime between Start and Stop (spec.md §4.A "sink_ctx
// must outlive stop"), which start guarantees by registering it in the
// callback registry until the driver's stop has returned.
type messageSink struct {
	fn func(Message)
}

//export goMessageTrampoline
func goMessageTrampoline(ctx unsafe.Pointer, msg *C.mod_message) {
	tok := uintptr(ctx)
	v := lookupCallback(tok)
	sink, ok := v.(*messageSink)
	if !ok || sink == nil || msg == nil {
		return
	}
	sink.fn(decodeMessage(msg))
}

// unixNative is the POSIX nativeInstance: a dlopen'd library, its function
// table (copied by value out of the driver so repeated calls don't re-walk
// symbol lookups), and the driver's opaque handle.
type unixNative struct {
	lib     unsafe.Pointer
	path    string
	table   C.mod_function_table
	handle  *C.mod_handle
	sinkTok uintptr // valid only while started
}

func loadNative(path, dataDir string) (nativeInstance, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	lib := C.mod_dlopen(cPath)
	if lib == nil {
		return nil, &LoadError{Path: path, Op: "open", Err: fmt.Errorf("dlopen failed")}
	}

	cVersionSym := C.CString("mod_version")
	defer C.free(unsafe.Pointer(cVersionSym))
	versionFn := C.mod_dlsym(lib, cVersionSym)
	if versionFn == nil {
		C.mod_dlclose(lib)
		return nil, &LoadError{Path: path, Op: "symbol:mod_version", Err: fmt.Errorf("symbol not found")}
	}

	got := uint8(C.mod_call_version(versionFn))
	if got != ABIVersion {
		C.mod_dlclose(lib)
		return nil, &VersionMismatchError{Got: got}
	}

	cFuncsSym := C.CString("functions")
	defer C.free(unsafe.Pointer(cFuncsSym))
	funcsFn := C.mod_dlsym(lib, cFuncsSym)
	if funcsFn == nil {
		C.mod_dlclose(lib)
		return nil, &LoadError{Path: path, Op: "symbol:functions", Err: fmt.Errorf("symbol not found")}
	}

	table := C.mod_call_functions(funcsFn)

	n := &unixNative{lib: lib, path: path, table: table}

	cDataDir := C.CString(dataDir) // host retains ownership for the call's duration (M1)
	defer C.free(unsafe.Pointer(cDataDir))

	var handle *C.mod_handle
	C.mod_call_init(&n.table, &handle, cDataDir)
	if handle == nil {
		C.mod_dlclose(lib)
		return nil, &LoadError{Path: path, Op: "init", Err: fmt.Errorf("driver returned null handle")}
	}
	n.handle = handle

	return n, nil
}

func (n *unixNative) obtainDeviceConnInfo() ([]ConnParamDescriptor, error) {
	sink := &metadataSink{kind: "conn_info"}
	tok := registerCallback(sink)
	defer unregisterCallback(tok)
	C.mod_call_obtain_conn_info(&n.table, n.handle, unsafe.Pointer(tok))
	return sink.connOut, nil
}

func (n *unixNative) connectDevice(entries []ConfEntry) (ComError, error) {
	list, free := encodeConfList(entries)
	defer free()
	code := C.mod_call_connect(&n.table, n.handle, list)
	return comErrorFromC(uint8(code)), nil
}

func (n *unixNative) obtainDeviceConfInfo() ([]ConfigInfo, error) {
	sink := &metadataSink{kind: "conf_info"}
	tok := registerCallback(sink)
	defer unregisterCallback(tok)
	C.mod_call_obtain_conf_info(&n.table, n.handle, unsafe.Pointer(tok))
	return sink.confOut, nil
}

func (n *unixNative) configureDevice(entries []ConfEntry) (ComError, error) {
	list, free := encodeConfList(entries)
	defer free()
	code := C.mod_call_configure(&n.table, n.handle, list)
	return comErrorFromC(uint8(code)), nil
}

func (n *unixNative) obtainSensorTypeInfos() ([]SensorTypeInfo, error) {
	sink := &metadataSink{kind: "sensor_types"}
	tok := registerCallback(sink)
	defer unregisterCallback(tok)
	C.mod_call_obtain_sensor_types(&n.table, n.handle, unsafe.Pointer(tok))
	return sink.typesOut, nil
}

func (n *unixNative) start(fn func(Message)) error {
	sink := &messageSink{fn: fn}
	n.sinkTok = registerCallback(sink)
	C.mod_call_start(&n.table, n.handle, unsafe.Pointer(n.sinkTok))
	return nil
}

func (n *unixNative) stop() (ComError, error) {
	code := C.mod_call_stop(&n.table, n.handle)
	if n.sinkTok != 0 {
		unregisterCallback(n.sinkTok)
		n.sinkTok = 0
	}
	return comErrorFromC(uint8(code)), nil
}

func (n *unixNative) destroy() {
	C.mod_call_destroy(&n.table, n.handle)
	n.handle = nil
}

func (n *unixNative) unload() error {
	if n.lib == nil {
		return nil
	}
	if C.mod_dlclose(n.lib) != 0 {
		return apperr.Wrap(apperr.IO, "dlclose failed", fmt.Errorf("%s", n.path))
	}
	n.lib = nil
	return nil
}
