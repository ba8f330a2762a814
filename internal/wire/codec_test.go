package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
	}{
		{
			name:   "login",
			packet: Login{Username: "l@m.c", Password: "qqqq"},
		},
		{
			name:   "register",
			packet: Register{Username: "l@m.c", Password: "qqqq", Name: "Lena"},
		},
		{
			name:   "create table",
			packet: CreateTable{LocalID: 1, Time: 1700000000, Name: "Sprint", Description: "Q1 plan"},
		},
		{
			name: "create task with full field set",
			packet: CreateTask{
				TableID:     7,
				TaskID:      1,
				Time:        1000,
				Name:        "Ship",
				Description: "v1",
				StartDate:   "2024-01-01",
				EndDate:     "2024-01-02",
				StartTime:   "09:00:00",
				EndTime:     "17:00:00",
				Period:      0,
			},
		},
		{
			name: "create task with absent dates",
			packet: CreateTask{
				TableID: 7,
				TaskID:  2,
				Time:    1000,
				Name:    "Ship",
				Period:  14,
			},
		},
		{
			name:   "change table",
			packet: ChangeTable{TableID: 3, Time: 42, Name: "renamed", Description: ""},
		},
		{
			name: "change task",
			packet: ChangeTask{
				TableID: 3, TaskID: 9, Time: 42,
				Name: "n", Description: "d",
				StartDate: "2024-06-01", EndDate: "2024-06-30",
				StartTime: "08:30:00", EndTime: "18:00:00",
				Period: 7,
			},
		},
		{
			name:   "set permission",
			packet: SetPermission{TableID: 3, UserID: 12, Permission: 2},
		},
		{
			name:   "add comment",
			packet: AddComment{TableID: 3, TaskID: 9, Time: 77, Text: "looks good"},
		},
		{
			name:   "login result",
			packet: LoginResult{Status: StatusSuccess, UserID: 15},
		},
		{
			name:   "register result failure",
			packet: RegisterResult{Status: StatusFailure},
		},
		{
			name:   "table confirm",
			packet: TableConfirm{LocalID: 1, GlobalID: 501},
		},
		{
			name:   "task confirm",
			packet: TaskConfirm{TableGlobalID: 501, TaskID: 1, GlobalID: 900},
		},
		{
			name: "remote table change",
			packet: TableChange{
				TableGlobalID: 501, UserID: 2, Time: 2000,
				Name: "Sprint v2", Description: "Q1 plan revised",
			},
		},
		{
			name: "remote task change",
			packet: TaskChange{
				TableGlobalID: 501, TaskGlobalID: 900, UserID: 2, Time: 2000,
				Name: "Design", Description: "",
				StartDate: "2024-01-01", EndDate: "", StartTime: "", EndTime: "17:00:00",
				Period: 0,
			},
		},
		{
			name:   "permission change",
			packet: PermissionChange{TableGlobalID: 501, UserID: 12, Permission: 1},
		},
		{
			name:   "remote comment",
			packet: Comment{TableGlobalID: 501, TaskGlobalID: 900, UserID: 2, Time: 3000, Text: "done?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.packet); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.packet) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.packet)
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes left in stream after decode", buf.Len())
			}
		})
	}
}

func TestDecodeMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	first := Login{Username: "a", Password: "b"}
	second := TableConfirm{LocalID: 1, GlobalID: 5}
	if err := Encode(&buf, first); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&buf, second); err != nil {
		t.Fatal(err)
	}

	got1, err := Decode(&buf)
	if err != nil {
		t.Fatalf("first Decode() error = %v", err)
	}
	got2, err := Decode(&buf)
	if err != nil {
		t.Fatalf("second Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got1, first) || !reflect.DeepEqual(got2, second) {
		t.Errorf("frames = %+v, %+v", got1, got2)
	}
	if _, err := Decode(&buf); err != io.EOF {
		t.Errorf("Decode() at end = %v, want io.EOF", err)
	}
}

func TestFrameLayout(t *testing.T) {
	// One frame: u32 length, u16 tag, then payload.
	var buf bytes.Buffer
	if err := Encode(&buf, TableConfirm{LocalID: 1, GlobalID: 501}); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	if len(raw) != 4+2+4+4 {
		t.Fatalf("frame size = %d, want 14", len(raw))
	}
	if got := binary.BigEndian.Uint32(raw[0:4]); got != 10 {
		t.Errorf("length prefix = %d, want 10", got)
	}
	if got := binary.BigEndian.Uint16(raw[4:6]); got != uint16(TypeTableConfirm) {
		t.Errorf("tag = %d, want %d", got, TypeTableConfirm)
	}
	if got := binary.BigEndian.Uint32(raw[6:10]); got != 1 {
		t.Errorf("local id = %d, want 1 (big-endian)", got)
	}
	if got := binary.BigEndian.Uint32(raw[10:14]); got != 501 {
		t.Errorf("global id = %d, want 501 (big-endian)", got)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	var raw bytes.Buffer
	raw.Write([]byte{0, 0, 0, 2, 0xEE, 0xFF})

	_, err := Decode(&raw)
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Decode() error = %v, want ErrUnknownType", err)
	}
}

func TestDecodeOversizedFrame(t *testing.T) {
	var raw bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxFrame+1)
	raw.Write(lenBuf[:])

	_, err := Decode(&raw)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Decode() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	// Claim a LOGIN frame of 2 bytes: the tag alone, no string fields.
	var raw bytes.Buffer
	raw.Write([]byte{0, 0, 0, 2})
	var tag [2]byte
	binary.BigEndian.PutUint16(tag[:], uint16(TypeLogin))
	raw.Write(tag[:])

	if _, err := Decode(&raw); err == nil {
		t.Error("Decode() of truncated LOGIN should fail")
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	var raw bytes.Buffer
	raw.Write([]byte{0, 0, 0, 7})
	var tag [2]byte
	binary.BigEndian.PutUint16(tag[:], uint16(TypeTableConfirm))
	raw.Write(tag[:])
	raw.Write([]byte{0, 0, 1, 245, 0xAA}) // global id 501 plus junk byte

	if _, err := Decode(&raw); err == nil {
		t.Error("Decode() with trailing bytes should fail")
	}
}

func TestEncodeStringTooLong(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, Login{Username: strings.Repeat("x", 70000)})
	if !errors.Is(err, ErrStringTooLong) {
		t.Errorf("Encode() error = %v, want ErrStringTooLong", err)
	}
}

func TestEncodeBadFixedString(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, CreateTask{TableID: 1, Name: "x", StartDate: "2024-1-1"})
	if err == nil {
		t.Error("Encode() with malformed fixed date should fail")
	}
}

func TestTypeClassification(t *testing.T) {
	if !TypeLogin.Auth() || !TypeLoginResult.Auth() {
		t.Error("login tags should classify as auth")
	}
	if TypeCreateTask.Auth() {
		t.Error("CREATE_TASK should not classify as auth")
	}
	if TypeLogin.FromServer() {
		t.Error("LOGIN is client to server")
	}
	if !TypeTaskConfirm.FromServer() {
		t.Error("TASK_CONFIRM is server to client")
	}
}
