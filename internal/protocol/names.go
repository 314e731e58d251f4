package protocol

type Kind string

const (
	KindBoard      Kind = "board"
	KindCollection Kind = "collection"
	KindLink       Kind = "link"
	KindItem       Kind = "item"
)

type Op string

const (
	OpAdded   Op = "added"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Control events carry no mutation.
const (
	EventJoinBoard  = "join-board"
	EventLeaveBoard = "leave-board"
	EventError      = "error"
)

type eventKey struct {
	kind Kind
	op   Op
}

// clientEvents are the names a client emits after a successful local mutation.
var clientEvents = map[string]eventKey{
	"add-item":    {KindItem, OpAdded},
	"update-item": {KindItem, OpUpdated},
	"delete-item": {KindItem, OpDeleted},

	"add-link":    {KindLink, OpAdded},
	"update-link": {KindLink, OpUpdated},
	"delete-link": {KindLink, OpDeleted},

	"collection-created": {KindCollection, OpAdded},
	"collection-updated": {KindCollection, OpUpdated},
	"collection-deleted": {KindCollection, OpDeleted},

	"board-created": {KindBoard, OpAdded},
	"board-updated": {KindBoard, OpUpdated},
	"board-deleted": {KindBoard, OpDeleted},
}

// serverEvents are the names the server fans out to room members.
var serverEvents = map[string]eventKey{
	"item-added":   {KindItem, OpAdded},
	"item-updated": {KindItem, OpUpdated},
	"item-deleted": {KindItem, OpDeleted},

	"link-added":   {KindLink, OpAdded},
	"link-updated": {KindLink, OpUpdated},
	"link-deleted": {KindLink, OpDeleted},

	"collection-added":   {KindCollection, OpAdded},
	"collection-updated": {KindCollection, OpUpdated},
	"collection-deleted": {KindCollection, OpDeleted},

	"board-added":   {KindBoard, OpAdded},
	"board-updated": {KindBoard, OpUpdated},
	"board-deleted": {KindBoard, OpDeleted},
}

var (
	clientNames = invert(clientEvents)
	serverNames = invert(serverEvents)
)

func invert(m map[string]eventKey) map[eventKey]string {
	out := make(map[eventKey]string, len(m))
	for name, key := range m {
		out[key] = name
	}
	return out
}

// IsClientEvent reports whether name is a client→server mutation event.
func IsClientEvent(name string) bool {
	_, ok := clientEvents[name]
	return ok
}

// IsServerEvent reports whether name is a server→client mutation event.
func IsServerEvent(name string) bool {
	_, ok := serverEvents[name]
	return ok
}
