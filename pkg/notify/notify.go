// Package notify delivers process-exit events from the kernel proc
// connector, so a pending kill can be confirmed before its grace window
// lapses.
package notify

import (
	"encoding/binary"
	"unsafe"
)

// Proc connector constants from linux/connector.h and linux/cn_proc.h;
// x/sys/unix does not export these.
const (
	cnIdxProc = 0x1
	cnValProc = 0x1

	procCnMcastListen = 1
	procCnMcastIgnore = 2

	procEventExit = 0x80000000
)

const (
	nlMsgHdrLen  = 16 // unix.SizeofNlMsghdr
	cnMsgLen     = 20 // struct cn_msg header
	eventHdrLen  = 16 // proc_event what/cpu/timestamp
	exitEventLen = 16 // exit_proc_event pid/tgid/code/signal
)

// Netlink payloads are in host byte order.
var nativeEndian = func() binary.ByteOrder {
	var probe uint16 = 1
	if *(*byte)(unsafe.Pointer(&probe)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

// exitPID extracts the exiting process's pid from one netlink payload
// (cn_msg plus proc_event, the nlmsghdr already stripped). Thread exits and
// every other event kind return false: only the demise of a whole process
// clears a pending death.
func exitPID(data []byte) (int, bool) {
	if len(data) < cnMsgLen+eventHdrLen+exitEventLen {
		return 0, false
	}
	if nativeEndian.Uint32(data[0:4]) != cnIdxProc || nativeEndian.Uint32(data[4:8]) != cnValProc {
		return 0, false
	}
	event := data[cnMsgLen:]
	if nativeEndian.Uint32(event[0:4]) != procEventExit {
		return 0, false
	}
	exit := event[eventHdrLen:]
	pid := int(int32(nativeEndian.Uint32(exit[0:4])))
	tgid := int(int32(nativeEndian.Uint32(exit[4:8])))
	if pid != tgid {
		return 0, false
	}
	return pid, true
}

// mcastOp builds the cn_msg datagram that subscribes to (or unsubscribes
// from) the proc event multicast group.
func mcastOp(op uint32) []byte {
	buf := make([]byte, nlMsgHdrLen+cnMsgLen+4)
	nativeEndian.PutUint32(buf[0:4], uint32(len(buf))) // nlmsg_len
	nativeEndian.PutUint16(buf[4:6], 3)                // nlmsg_type = NLMSG_DONE
	body := buf[nlMsgHdrLen:]
	nativeEndian.PutUint32(body[0:4], cnIdxProc)
	nativeEndian.PutUint32(body[4:8], cnValProc)
	nativeEndian.PutUint16(body[16:18], 4) // cn_msg.len
	nativeEndian.PutUint32(body[cnMsgLen:], op)
	return buf
}
