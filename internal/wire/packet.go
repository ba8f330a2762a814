// Package wire implements the binary protocol between the schedule client
// and server.
//
// The stream is a sequence of frames. Each frame is a big-endian uint32
// byte length followed by that many bytes: a uint16 type tag and a
// type-specific payload. Field encodings:
//   - fixed-width integers: big-endian at their declared width
//   - strings: uint16 byte length prefix, then UTF-8 bytes
//   - dates and clock times: fixed-width canonical text, 10 bytes
//     "YYYY-MM-DD" and 8 bytes "HH:MM:SS", all zero bytes when absent
//
// Packets form a closed tagged union split by direction: the 1xx tags are
// client to server, the 2xx tags server to client. Decoding an unknown tag
// is a protocol violation.
package wire

// Type is a packet type tag. The tag value is the first field of every
// frame after the length prefix.
type Type uint16

// Client-to-server packet types.
const (
	TypeLogin         Type = 101
	TypeRegister      Type = 102
	TypeCreateTable   Type = 103
	TypeCreateTask    Type = 104
	TypeChangeTable   Type = 105
	TypeChangeTask    Type = 106
	TypeSetPermission Type = 107
	TypeAddComment    Type = 108
)

// Server-to-client packet types.
const (
	TypeLoginResult      Type = 201
	TypeRegisterResult   Type = 202
	TypeTableConfirm     Type = 203
	TypeTaskConfirm      Type = 204
	TypeTableChange      Type = 205
	TypeTaskChange       Type = 206
	TypePermissionChange Type = 207
	TypeComment          Type = 208
)

// String returns the packet type name for logs.
func (t Type) String() string {
	switch t {
	case TypeLogin:
		return "LOGIN"
	case TypeRegister:
		return "REGISTER"
	case TypeCreateTable:
		return "CREATE_TABLE"
	case TypeCreateTask:
		return "CREATE_TASK"
	case TypeChangeTable:
		return "CHANGE_TABLE"
	case TypeChangeTask:
		return "CHANGE_TASK"
	case TypeSetPermission:
		return "SET_PERMISSION"
	case TypeAddComment:
		return "ADD_COMMENT"
	case TypeLoginResult:
		return "LOGIN_RESULT"
	case TypeRegisterResult:
		return "REGISTER_RESULT"
	case TypeTableConfirm:
		return "TABLE_CONFIRM"
	case TypeTaskConfirm:
		return "TASK_CONFIRM"
	case TypeTableChange:
		return "TABLE_CHANGE"
	case TypeTaskChange:
		return "TASK_CHANGE"
	case TypePermissionChange:
		return "PERMISSION_CHANGE"
	case TypeComment:
		return "COMMENT"
	default:
		return "UNKNOWN"
	}
}

// FromServer reports whether the tag belongs to the server-to-client half
// of the enumeration.
func (t Type) FromServer() bool {
	return t >= TypeLoginResult && t <= TypeComment
}

// Auth reports whether the tag is part of the authentication handshake.
// Auth packets are the only ones valid before login succeeds.
func (t Type) Auth() bool {
	switch t {
	case TypeLogin, TypeRegister, TypeLoginResult, TypeRegisterResult:
		return true
	}
	return false
}

// Status is the outcome of an auth request.
type Status uint8

const (
	StatusSuccess Status = 0
	StatusFailure Status = 1
)

// Packet is one protocol message. The concrete type is determined by the
// type tag; the codec switches on the tag to decode into the right variant.
type Packet interface {
	// Type returns the wire tag for this packet.
	Type() Type
}

// Login authenticates an existing user.
type Login struct {
	Username string
	Password string
}

// Register creates a new account.
type Register struct {
	Username string
	Password string
	Name     string
}

// CreateTable announces a locally created table. LocalID is the client's
// provisional id; the server echoes it in TableConfirm alongside the
// global id it assigns.
type CreateTable struct {
	LocalID     int32
	Time        int64
	Name        string
	Description string
}

// CreateTask announces a locally created task under a confirmed table.
// TaskID is the client's provisional id, echoed in TaskConfirm.
type CreateTask struct {
	TableID     int32 // server-assigned table id
	TaskID      int32 // client-local task id
	Time        int64
	Name        string
	Description string
	StartDate   string // "YYYY-MM-DD" or empty
	EndDate     string
	StartTime   string // "HH:MM:SS" or empty
	EndTime     string
	Period      int32
}

// ChangeTable carries a table change record authored on this client.
type ChangeTable struct {
	TableID     int32
	Time        int64
	Name        string
	Description string
}

// ChangeTask carries a task change record authored on this client.
type ChangeTask struct {
	TableID     int32
	TaskID      int32
	Time        int64
	Name        string
	Description string
	StartDate   string
	EndDate     string
	StartTime   string
	EndTime     string
	Period      int32
}

// SetPermission grants or revokes a user's access to a table. Permission 0
// (none) revokes.
type SetPermission struct {
	TableID    int32
	UserID     int32
	Permission uint8
}

// AddComment appends a comment to a task.
type AddComment struct {
	TableID int32
	TaskID  int32
	Time    int64
	Text    string
}

// LoginResult reports the outcome of a Login. On success UserID carries
// the server-side id of the session user.
type LoginResult struct {
	Status Status
	UserID int32
}

// RegisterResult reports the outcome of a Register.
type RegisterResult struct {
	Status Status
}

// TableConfirm attaches a server-assigned global id to the locally
// created table identified by the echoed local id.
type TableConfirm struct {
	LocalID  int32
	GlobalID int32
}

// TaskConfirm attaches a server-assigned global id to a locally created
// task of the given table.
type TaskConfirm struct {
	TableGlobalID int32
	TaskID        int32 // client-local task id, echoed from CreateTask
	GlobalID      int32
}

// TableChange is a remote-origin table change. Entities are resolved by
// global id; a change for an unknown global id is unresolvable.
type TableChange struct {
	TableGlobalID int32
	UserID        int32
	Time          int64
	Name          string
	Description   string
}

// TaskChange is a remote-origin task change.
type TaskChange struct {
	TableGlobalID int32
	TaskGlobalID  int32
	UserID        int32
	Time          int64
	Name          string
	Description   string
	StartDate     string
	EndDate       string
	StartTime     string
	EndTime       string
	Period        int32
}

// PermissionChange is a remote-origin permission update.
type PermissionChange struct {
	TableGlobalID int32
	UserID        int32
	Permission    uint8
}

// Comment is a remote-origin comment.
type Comment struct {
	TableGlobalID int32
	TaskGlobalID  int32
	UserID        int32
	Time          int64
	Text          string
}

func (Login) Type() Type            { return TypeLogin }
func (Register) Type() Type         { return TypeRegister }
func (CreateTable) Type() Type      { return TypeCreateTable }
func (CreateTask) Type() Type       { return TypeCreateTask }
func (ChangeTable) Type() Type      { return TypeChangeTable }
func (ChangeTask) Type() Type       { return TypeChangeTask }
func (SetPermission) Type() Type    { return TypeSetPermission }
func (AddComment) Type() Type       { return TypeAddComment }
func (LoginResult) Type() Type      { return TypeLoginResult }
func (RegisterResult) Type() Type   { return TypeRegisterResult }
func (TableConfirm) Type() Type     { return TypeTableConfirm }
func (TaskConfirm) Type() Type      { return TypeTaskConfirm }
func (TableChange) Type() Type      { return TypeTableChange }
func (TaskChange) Type() Type       { return TypeTaskChange }
func (PermissionChange) Type() Type { return TypePermissionChange }
func (Comment) Type() Type          { return TypeComment }
