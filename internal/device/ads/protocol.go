// Package ads implements the Beckhoff ADS device session. It speaks the
// AMS/TCP framing and the small ADS command subset needed for symbolic
// reads: symbol handle acquisition by name, read by handle and handle
// release.
package ads

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/plcwatch/plclogger/internal/device"
)

// DefaultTCPPort is the AMS router TCP port.
const DefaultTCPPort = 48898

// ADS command IDs.
const (
	cmdRead      = 2
	cmdWrite     = 3
	cmdReadWrite = 9
)

// Index groups for symbol access.
const (
	igSymHandleByName  = 0xF003
	igSymValByHandle   = 0xF005
	igSymReleaseHandle = 0xF006
)

// AMS state flags for a command request.
const stateFlagsRequest = 0x0004

const (
	amsTCPHeaderLen = 6
	amsHeaderLen    = 32
)

// NetID is an AMS net ID, six bytes written as dot-separated integers.
type NetID [6]byte

// ParseNetID parses the textual form, e.g. "5.18.32.44.1.1".
func ParseNetID(s string) (NetID, error) {
	var id NetID
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return id, fmt.Errorf("ads: net ID %q must have six parts", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return id, fmt.Errorf("ads: net ID part %q out of range in %q", p, s)
		}
		id[i] = byte(n)
	}
	return id, nil
}

func (n NetID) String() string {
	parts := make([]string, 6)
	for i, b := range n {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".")
}

// netIDForAddr derives the local AMS net ID the Beckhoff convention way:
// the interface IPv4 address with ".1.1" appended.
func netIDForAddr(addr net.Addr) NetID {
	var id NetID
	id[4], id[5] = 1, 1
	if tcp, ok := addr.(*net.TCPAddr); ok {
		if v4 := tcp.IP.To4(); v4 != nil {
			copy(id[:4], v4)
		}
	}
	return id
}

// ResultError is a non-zero ADS result code returned by the device. It marks
// a symbol-level failure (missing or renamed variable), not a transport
// failure, and callers degrade the single value instead of reconnecting.
type ResultError uint32

func (e ResultError) Error() string {
	switch uint32(e) {
	case 0x710:
		return "ads: symbol not found (0x710)"
	case 0x705:
		return "ads: invalid size (0x705)"
	case 0x706:
		return "ads: invalid data (0x706)"
	default:
		return fmt.Sprintf("ads: device returned error 0x%x", uint32(e))
	}
}

// conn is one AMS/TCP connection. Requests are serialized; the protocol is
// strictly request/response per invoke ID and the session never pipelines.
type conn struct {
	mu         sync.Mutex
	tcp        net.Conn
	target     NetID
	targetPort uint16
	source     NetID
	sourcePort uint16
	timeout    time.Duration
	invokeID   uint32
}

func dial(ip string, target NetID, targetPort uint16, timeout time.Duration) (*conn, error) {
	tcp, err := net.DialTimeout("tcp", net.JoinHostPort(ip, strconv.Itoa(DefaultTCPPort)), timeout)
	if err != nil {
		return nil, device.Connectivity("connect", errors.Wrapf(err, "ads %s", ip))
	}
	return &conn{
		tcp:        tcp,
		target:     target,
		targetPort: targetPort,
		source:     netIDForAddr(tcp.LocalAddr()),
		sourcePort: 32905,
		timeout:    timeout,
	}, nil
}

func (c *conn) close() error {
	if c.tcp == nil {
		return nil
	}
	err := c.tcp.Close()
	c.tcp = nil
	return err
}

// request sends one ADS command and returns the response payload that
// follows the AMS header. Transport failures come back as connectivity
// errors; a non-zero AMS error code is returned as a ResultError.
func (c *conn) request(cmd uint16, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tcp == nil {
		return nil, device.Connectivity("request", errors.New("connection closed"))
	}

	c.invokeID++
	frame := make([]byte, amsTCPHeaderLen+amsHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(frame[2:], uint32(amsHeaderLen+len(payload)))
	h := frame[amsTCPHeaderLen:]
	copy(h[0:6], c.target[:])
	binary.LittleEndian.PutUint16(h[6:], c.targetPort)
	copy(h[8:14], c.source[:])
	binary.LittleEndian.PutUint16(h[14:], c.sourcePort)
	binary.LittleEndian.PutUint16(h[16:], cmd)
	binary.LittleEndian.PutUint16(h[18:], stateFlagsRequest)
	binary.LittleEndian.PutUint32(h[20:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(h[24:], 0) // error code
	binary.LittleEndian.PutUint32(h[28:], c.invokeID)
	copy(h[amsHeaderLen:], payload)

	deadline := time.Now().Add(c.timeout)
	if err := c.tcp.SetDeadline(deadline); err != nil {
		return nil, device.Connectivity("set deadline", err)
	}
	if _, err := c.tcp.Write(frame); err != nil {
		return nil, device.Connectivity("write", err)
	}

	var tcpHeader [amsTCPHeaderLen]byte
	if _, err := io.ReadFull(c.tcp, tcpHeader[:]); err != nil {
		return nil, device.Connectivity("read response header", err)
	}
	bodyLen := binary.LittleEndian.Uint32(tcpHeader[2:])
	if bodyLen < amsHeaderLen || bodyLen > 1<<20 {
		return nil, device.Connectivity("read response",
			errors.Errorf("implausible AMS frame length %d", bodyLen))
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(c.tcp, body); err != nil {
		return nil, device.Connectivity("read response body", err)
	}

	if code := binary.LittleEndian.Uint32(body[24:]); code != 0 {
		return nil, ResultError(code)
	}
	if got := binary.LittleEndian.Uint32(body[28:]); got != c.invokeID {
		return nil, device.Connectivity("read response",
			errors.Errorf("invoke ID mismatch: sent %d, got %d", c.invokeID, got))
	}
	return body[amsHeaderLen:], nil
}

// read issues an ADS Read for length bytes.
func (c *conn) read(indexGroup, indexOffset uint32, length int) ([]byte, error) {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:], indexGroup)
	binary.LittleEndian.PutUint32(payload[4:], indexOffset)
	binary.LittleEndian.PutUint32(payload[8:], uint32(length))

	resp, err := c.request(cmdRead, payload)
	if err != nil {
		return nil, err
	}
	return parseDataResponse(resp, length)
}

// write issues an ADS Write.
func (c *conn) write(indexGroup, indexOffset uint32, data []byte) error {
	payload := make([]byte, 12+len(data))
	binary.LittleEndian.PutUint32(payload[0:], indexGroup)
	binary.LittleEndian.PutUint32(payload[4:], indexOffset)
	binary.LittleEndian.PutUint32(payload[8:], uint32(len(data)))
	copy(payload[12:], data)

	resp, err := c.request(cmdWrite, payload)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return device.Connectivity("write", errors.New("short write response"))
	}
	if code := binary.LittleEndian.Uint32(resp); code != 0 {
		return ResultError(code)
	}
	return nil
}

// readWrite issues an ADS ReadWrite: writes data and reads back readLen bytes.
func (c *conn) readWrite(indexGroup, indexOffset uint32, readLen int, data []byte) ([]byte, error) {
	payload := make([]byte, 16+len(data))
	binary.LittleEndian.PutUint32(payload[0:], indexGroup)
	binary.LittleEndian.PutUint32(payload[4:], indexOffset)
	binary.LittleEndian.PutUint32(payload[8:], uint32(readLen))
	binary.LittleEndian.PutUint32(payload[12:], uint32(len(data)))
	copy(payload[16:], data)

	resp, err := c.request(cmdReadWrite, payload)
	if err != nil {
		return nil, err
	}
	return parseDataResponse(resp, readLen)
}

// parseDataResponse handles the common result/length/data layout of Read and
// ReadWrite responses.
func parseDataResponse(resp []byte, want int) ([]byte, error) {
	if len(resp) < 8 {
		return nil, device.Connectivity("read", errors.New("short data response"))
	}
	if code := binary.LittleEndian.Uint32(resp); code != 0 {
		return nil, ResultError(code)
	}
	n := int(binary.LittleEndian.Uint32(resp[4:]))
	if n > len(resp)-8 || n < want {
		return nil, device.Connectivity("read", errors.Errorf("data response claims %d bytes, have %d, want %d", n, len(resp)-8, want))
	}
	return resp[8 : 8+n], nil
}
