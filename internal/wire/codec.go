package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrame bounds the payload a decoder will allocate for. A frame
	// larger than this indicates a corrupted or hostile stream.
	MaxFrame = 1 << 20

	dateLen  = 10
	clockLen = 8
)

var (
	// ErrUnknownType is returned when decoding a frame with a tag outside
	// the closed enumeration. Receiving one is a protocol violation.
	ErrUnknownType = errors.New("wire: unknown packet type")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrame.
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

	// ErrStringTooLong is returned when encoding a string longer than the
	// uint16 length prefix can carry.
	ErrStringTooLong = errors.New("wire: string exceeds 65535 bytes")
)

// Encode writes p to w as one length-prefixed frame.
//
// Encoding fails only for malformed input: over-long variable strings or
// fixed strings of the wrong width. Well-formed packets always encode.
func Encode(w io.Writer, p Packet) error {
	var buf bytes.Buffer
	enc := encoder{buf: &buf}
	enc.u16(uint16(p.Type()))

	switch pk := p.(type) {
	case Login:
		enc.str(pk.Username)
		enc.str(pk.Password)
	case Register:
		enc.str(pk.Username)
		enc.str(pk.Password)
		enc.str(pk.Name)
	case CreateTable:
		enc.i32(pk.LocalID)
		enc.i64(pk.Time)
		enc.str(pk.Name)
		enc.str(pk.Description)
	case CreateTask:
		enc.i32(pk.TableID)
		enc.i32(pk.TaskID)
		enc.i64(pk.Time)
		enc.str(pk.Name)
		enc.str(pk.Description)
		enc.fixed(pk.StartDate, dateLen)
		enc.fixed(pk.EndDate, dateLen)
		enc.fixed(pk.StartTime, clockLen)
		enc.fixed(pk.EndTime, clockLen)
		enc.i32(pk.Period)
	case ChangeTable:
		enc.i32(pk.TableID)
		enc.i64(pk.Time)
		enc.str(pk.Name)
		enc.str(pk.Description)
	case ChangeTask:
		enc.i32(pk.TableID)
		enc.i32(pk.TaskID)
		enc.i64(pk.Time)
		enc.str(pk.Name)
		enc.str(pk.Description)
		enc.fixed(pk.StartDate, dateLen)
		enc.fixed(pk.EndDate, dateLen)
		enc.fixed(pk.StartTime, clockLen)
		enc.fixed(pk.EndTime, clockLen)
		enc.i32(pk.Period)
	case SetPermission:
		enc.i32(pk.TableID)
		enc.i32(pk.UserID)
		enc.u8(pk.Permission)
	case AddComment:
		enc.i32(pk.TableID)
		enc.i32(pk.TaskID)
		enc.i64(pk.Time)
		enc.str(pk.Text)
	case LoginResult:
		enc.u8(uint8(pk.Status))
		enc.i32(pk.UserID)
	case RegisterResult:
		enc.u8(uint8(pk.Status))
	case TableConfirm:
		enc.i32(pk.LocalID)
		enc.i32(pk.GlobalID)
	case TaskConfirm:
		enc.i32(pk.TableGlobalID)
		enc.i32(pk.TaskID)
		enc.i32(pk.GlobalID)
	case TableChange:
		enc.i32(pk.TableGlobalID)
		enc.i32(pk.UserID)
		enc.i64(pk.Time)
		enc.str(pk.Name)
		enc.str(pk.Description)
	case TaskChange:
		enc.i32(pk.TableGlobalID)
		enc.i32(pk.TaskGlobalID)
		enc.i32(pk.UserID)
		enc.i64(pk.Time)
		enc.str(pk.Name)
		enc.str(pk.Description)
		enc.fixed(pk.StartDate, dateLen)
		enc.fixed(pk.EndDate, dateLen)
		enc.fixed(pk.StartTime, clockLen)
		enc.fixed(pk.EndTime, clockLen)
		enc.i32(pk.Period)
	case PermissionChange:
		enc.i32(pk.TableGlobalID)
		enc.i32(pk.UserID)
		enc.u8(pk.Permission)
	case Comment:
		enc.i32(pk.TableGlobalID)
		enc.i32(pk.TaskGlobalID)
		enc.i32(pk.UserID)
		enc.i64(pk.Time)
		enc.str(pk.Text)
	default:
		return fmt.Errorf("wire: cannot encode %T", p)
	}

	if enc.err != nil {
		return enc.err
	}
	if buf.Len() > MaxFrame {
		return ErrFrameTooLarge
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(buf.Len()))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("wire: failed to write frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: failed to write frame: %w", err)
	}
	return nil
}

// Decode reads one frame from r and returns the decoded packet.
//
// io.EOF is returned untouched when the stream ends cleanly between
// frames. An unknown tag yields ErrUnknownType.
func Decode(r io.Reader) (Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: failed to read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 2 {
		return nil, fmt.Errorf("wire: frame length %d below minimum", length)
	}
	if length > MaxFrame {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("wire: failed to read frame body: %w", err)
	}

	dec := decoder{buf: frame}
	tag := Type(dec.u16())

	var p Packet
	switch tag {
	case TypeLogin:
		p = Login{Username: dec.str(), Password: dec.str()}
	case TypeRegister:
		p = Register{Username: dec.str(), Password: dec.str(), Name: dec.str()}
	case TypeCreateTable:
		p = CreateTable{LocalID: dec.i32(), Time: dec.i64(), Name: dec.str(), Description: dec.str()}
	case TypeCreateTask:
		p = CreateTask{
			TableID:     dec.i32(),
			TaskID:      dec.i32(),
			Time:        dec.i64(),
			Name:        dec.str(),
			Description: dec.str(),
			StartDate:   dec.fixed(dateLen),
			EndDate:     dec.fixed(dateLen),
			StartTime:   dec.fixed(clockLen),
			EndTime:     dec.fixed(clockLen),
			Period:      dec.i32(),
		}
	case TypeChangeTable:
		p = ChangeTable{TableID: dec.i32(), Time: dec.i64(), Name: dec.str(), Description: dec.str()}
	case TypeChangeTask:
		p = ChangeTask{
			TableID:     dec.i32(),
			TaskID:      dec.i32(),
			Time:        dec.i64(),
			Name:        dec.str(),
			Description: dec.str(),
			StartDate:   dec.fixed(dateLen),
			EndDate:     dec.fixed(dateLen),
			StartTime:   dec.fixed(clockLen),
			EndTime:     dec.fixed(clockLen),
			Period:      dec.i32(),
		}
	case TypeSetPermission:
		p = SetPermission{TableID: dec.i32(), UserID: dec.i32(), Permission: dec.u8()}
	case TypeAddComment:
		p = AddComment{TableID: dec.i32(), TaskID: dec.i32(), Time: dec.i64(), Text: dec.str()}
	case TypeLoginResult:
		p = LoginResult{Status: Status(dec.u8()), UserID: dec.i32()}
	case TypeRegisterResult:
		p = RegisterResult{Status: Status(dec.u8())}
	case TypeTableConfirm:
		p = TableConfirm{LocalID: dec.i32(), GlobalID: dec.i32()}
	case TypeTaskConfirm:
		p = TaskConfirm{TableGlobalID: dec.i32(), TaskID: dec.i32(), GlobalID: dec.i32()}
	case TypeTableChange:
		p = TableChange{
			TableGlobalID: dec.i32(),
			UserID:        dec.i32(),
			Time:          dec.i64(),
			Name:          dec.str(),
			Description:   dec.str(),
		}
	case TypeTaskChange:
		p = TaskChange{
			TableGlobalID: dec.i32(),
			TaskGlobalID:  dec.i32(),
			UserID:        dec.i32(),
			Time:          dec.i64(),
			Name:          dec.str(),
			Description:   dec.str(),
			StartDate:     dec.fixed(dateLen),
			EndDate:       dec.fixed(dateLen),
			StartTime:     dec.fixed(clockLen),
			EndTime:       dec.fixed(clockLen),
			Period:        dec.i32(),
		}
	case TypePermissionChange:
		p = PermissionChange{TableGlobalID: dec.i32(), UserID: dec.i32(), Permission: dec.u8()}
	case TypeComment:
		p = Comment{TableGlobalID: dec.i32(), TaskGlobalID: dec.i32(), UserID: dec.i32(), Time: dec.i64(), Text: dec.str()}
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownType, uint16(tag))
	}

	if dec.err != nil {
		return nil, fmt.Errorf("wire: failed to decode %s: %w", tag, dec.err)
	}
	if len(dec.buf) != 0 {
		return nil, fmt.Errorf("wire: %d trailing bytes after %s payload", len(dec.buf), tag)
	}
	return p, nil
}

// encoder appends big-endian fields to a buffer with a sticky error.
type encoder struct {
	buf *bytes.Buffer
	err error
}

func (e *encoder) u8(v uint8) {
	if e.err != nil {
		return
	}
	e.buf.WriteByte(v)
}

func (e *encoder) u16(v uint16) {
	if e.err != nil {
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) i32(v int32) {
	if e.err != nil {
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

func (e *encoder) i64(v int64) {
	if e.err != nil {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) str(s string) {
	if e.err != nil {
		return
	}
	if len(s) > 0xFFFF {
		e.err = fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
		return
	}
	e.u16(uint16(len(s)))
	e.buf.WriteString(s)
}

// fixed writes s padded to exactly n bytes. An empty string encodes as n
// zero bytes (the absent marker); anything else must already be n bytes.
func (e *encoder) fixed(s string, n int) {
	if e.err != nil {
		return
	}
	if s == "" {
		e.buf.Write(make([]byte, n))
		return
	}
	if len(s) != n {
		e.err = fmt.Errorf("wire: fixed string %q must be %d bytes", s, n)
		return
	}
	e.buf.WriteString(s)
}

// decoder consumes big-endian fields from a frame with a sticky error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("truncated payload: need %d bytes, have %d", n, len(d.buf))
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *decoder) i32() int32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (d *decoder) i64() int64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (d *decoder) str() string {
	n := int(d.u16())
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (d *decoder) fixed(n int) string {
	b := d.take(n)
	if b == nil {
		return ""
	}
	if b[0] == 0 {
		return ""
	}
	return string(b)
}
