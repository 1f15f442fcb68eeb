package keepassxc

// Protocol actions.
const (
	ActionChangePublicKeys = "change-public-keys"
	ActionAssociate        = "associate"
	ActionTestAssociate    = "test-associate"
	ActionGetDatabaseHash  = "get-databasehash"
	ActionCreateNewGroup   = "create-new-group"
	ActionGetLogins        = "get-logins"
	ActionSetLogin         = "set-login"

	actionDatabaseLocked   = "database-locked"
	actionDatabaseUnlocked = "database-unlocked"
)

// envelope is the outer, unencrypted frame exchanged on the socket.
type envelope struct {
	Action        string     `json:"action"`
	Message       string     `json:"message,omitempty"`
	Nonce         string     `json:"nonce,omitempty"`
	ClientID      string     `json:"clientID,omitempty"`
	PublicKey     string     `json:"publicKey,omitempty"`
	TriggerUnlock *Boolean   `json:"triggerUnlock,omitempty"`
	Version       string     `json:"version,omitempty"`
	Success       *Boolean   `json:"success,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorCode     flexString `json:"errorCode,omitempty"`
}

// replyHeader holds the fields common to every decrypted reply.
type replyHeader struct {
	Action    string     `json:"action,omitempty"`
	Version   string     `json:"version,omitempty"`
	Nonce     string     `json:"nonce,omitempty"`
	Success   *Boolean   `json:"success,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorCode flexString `json:"errorCode,omitempty"`
}

func (h *replyHeader) header() *replyHeader { return h }

func (h *replyHeader) succeeded() bool { return h.Success != nil && bool(*h.Success) }

// reply is implemented by every decrypted reply type through replyHeader.
type reply interface {
	header() *replyHeader
}

type associateRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	IDKey  string `json:"idKey"`
}

type associateReply struct {
	replyHeader
	Hash string `json:"hash"`
	ID   string `json:"id"`
}

type testAssociateRequest struct {
	Action string `json:"action"`
	ID     string `json:"id"`
	Key    string `json:"key"`
}

type testAssociateReply struct {
	replyHeader
	Hash string `json:"hash"`
	ID   string `json:"id"`
}

type databaseHashRequest struct {
	Action string `json:"action"`
}

type databaseHashReply struct {
	replyHeader
	Hash string `json:"hash"`
}

type createNewGroupRequest struct {
	Action    string `json:"action"`
	GroupName string `json:"groupName"`
}

type createNewGroupReply struct {
	replyHeader
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// Group is a KeePassXC entry group.
type Group struct {
	Name string
	UUID string
}

// KeyPair identifies one database association in a get-logins request.
type KeyPair struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type getLoginsRequest struct {
	Action    string    `json:"action"`
	URL       string    `json:"url"`
	SubmitURL string    `json:"submitUrl,omitempty"`
	HTTPAuth  string    `json:"httpAuth,omitempty"`
	Keys      []KeyPair `json:"keys"`
}

type getLoginsReply struct {
	replyHeader
	Count   flexString   `json:"count"`
	Entries []LoginEntry `json:"entries"`
}

// LoginEntry is one stored login returned by get-logins.
type LoginEntry struct {
	Login        string              `json:"login"`
	Name         string              `json:"name"`
	Password     string              `json:"password"`
	UUID         string              `json:"uuid"`
	StringFields []map[string]string `json:"stringFields,omitempty"`
	Expired      *Boolean            `json:"expired,omitempty"`
}

// IsExpired reports whether KeePassXC flagged the entry as expired.
func (e LoginEntry) IsExpired() bool {
	return e.Expired != nil && bool(*e.Expired)
}

// StringField returns the value of the first custom string field with the given name.
func (e LoginEntry) StringField(name string) (string, bool) {
	for _, fields := range e.StringFields {
		if v, ok := fields[name]; ok {
			return v, true
		}
	}
	return "", false
}

type setLoginRequest struct {
	Action    string `json:"action"`
	URL       string `json:"url"`
	SubmitURL string `json:"submitUrl"`
	ID        string `json:"id"`
	Nonce     string `json:"nonce"`
	Login     string `json:"login"`
	Password  string `json:"password"`
	Group     string `json:"group,omitempty"`
	GroupUUID string `json:"groupUuid,omitempty"`
	UUID      string `json:"uuid,omitempty"`
}

type setLoginReply struct {
	replyHeader
	Hash string `json:"hash"`
}

// SetLoginParams describes a create-or-update request. An empty UUID creates a
// new entry.
type SetLoginParams struct {
	URL        string
	SubmitURL  string
	DatabaseID string
	Login      string
	Password   string
	Group      string
	GroupUUID  string
	UUID       string
}

// SetLoginResult is the raw outcome of a set-login request.
type SetLoginResult struct {
	Success   bool
	HasFlag   bool
	Error     string
	ErrorCode string
}
