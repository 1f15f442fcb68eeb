// Package keepassxc implements the client side of the KeePassXC browser
// protocol: a per-invocation key exchange followed by NaCl box encrypted
// request/reply pairs over a local socket.
package keepassxc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/box"

	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
)

// Client is one session with KeePassXC. The ephemeral keys are generated in
// NewClient and never leave the Client.
type Client struct {
	conn      net.Conn
	dec       *json.Decoder
	clientID  string
	publicKey *[keySize]byte
	secretKey *[keySize]byte
	hostKey   *[keySize]byte
	shared    [keySize]byte
	logger    *zap.Logger
}

// Connect dials the KeePassXC endpoint and negotiates a session.
func Connect(ctx context.Context, endpoint string, logger *zap.Logger) (*Client, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	c, err := NewClient(ctx, conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient negotiates a session over an established connection.
func NewClient(ctx context.Context, conn net.Conn, logger *zap.Logger) (*Client, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate session keys: %w", err)
	}
	c := &Client{
		conn:      conn,
		dec:       json.NewDecoder(conn),
		clientID:  uuid.NewString(),
		publicKey: pub,
		secretKey: sec,
		logger:    logger,
	}
	if err := c.exchangeKeys(ctx); err != nil {
		return nil, err
	}
	logger.Debug("keepassxc session established", zap.String("client_id", c.clientID))
	return c, nil
}

// ClientID returns the throwaway id of this session.
func (c *Client) ClientID() string { return c.clientID }

// Close closes the connection and wipes the session keys.
func (c *Client) Close() error {
	for i := range c.secretKey {
		c.secretKey[i] = 0
	}
	for i := range c.shared {
		c.shared[i] = 0
	}
	return c.conn.Close()
}

func (c *Client) exchangeKeys(ctx context.Context) error {
	nonce, err := newNonce()
	if err != nil {
		return err
	}
	req := envelope{
		Action:    ActionChangePublicKeys,
		PublicKey: encodeKey(c.publicKey),
		Nonce:     encodeNonce(nonce),
		ClientID:  c.clientID,
	}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if resp.Error != "" || resp.ErrorCode != "" {
		return fmt.Errorf("%w: %w", ErrHandshake, envelopeError(resp))
	}
	if resp.PublicKey == "" {
		return fmt.Errorf("%w: reply carries no public key", ErrHandshake)
	}
	if resp.Nonce != "" {
		if err := checkNonce(resp.Nonce, nonce); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
	}
	hostKey, err := decodeKey(resp.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: host %w", ErrHandshake, err)
	}
	c.hostKey = hostKey
	box.Precompute(&c.shared, c.hostKey, c.secretKey)
	return nil
}

// Associate registers a permanent public key and returns the database id
// KeePassXC assigned to it. KeePassXC asks the user to confirm.
func (c *Client) Associate(ctx context.Context, idPublicKey string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	req := associateRequest{
		Action: ActionAssociate,
		Key:    encodeKey(c.publicKey),
		IDKey:  idPublicKey,
	}
	var reply associateReply
	if err := c.send(ctx, nonce, ActionAssociate, req, &reply, false); err != nil {
		return "", err
	}
	if !reply.succeeded() || reply.ID == "" {
		return "", fmt.Errorf("%w: association failed", ErrRejected)
	}
	return reply.ID, nil
}

// TestAssociate checks that an association is still known to the open
// database. With triggerUnlock KeePassXC brings up its unlock dialog.
func (c *Client) TestAssociate(ctx context.Context, id, idPublicKey string, triggerUnlock bool) error {
	nonce, err := newNonce()
	if err != nil {
		return err
	}
	req := testAssociateRequest{
		Action: ActionTestAssociate,
		ID:     id,
		Key:    idPublicKey,
	}
	var reply testAssociateReply
	if err := c.send(ctx, nonce, ActionTestAssociate, req, &reply, triggerUnlock); err != nil {
		return err
	}
	if !reply.succeeded() {
		return fmt.Errorf("%w: association %s not accepted", ErrRejected, id)
	}
	return nil
}

// GetDatabaseHash returns the hash of the active database. It fails while
// the database is locked.
func (c *Client) GetDatabaseHash(ctx context.Context) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	var reply databaseHashReply
	req := databaseHashRequest{Action: ActionGetDatabaseHash}
	if err := c.send(ctx, nonce, ActionGetDatabaseHash, req, &reply, false); err != nil {
		return "", err
	}
	if reply.Hash == "" {
		return "", fmt.Errorf("%w: no database hash", ErrRejected)
	}
	return reply.Hash, nil
}

// CreateNewGroup creates a group, or returns the existing one of that name.
func (c *Client) CreateNewGroup(ctx context.Context, name string) (Group, error) {
	nonce, err := newNonce()
	if err != nil {
		return Group{}, err
	}
	var reply createNewGroupReply
	req := createNewGroupRequest{Action: ActionCreateNewGroup, GroupName: name}
	if err := c.send(ctx, nonce, ActionCreateNewGroup, req, &reply, false); err != nil {
		return Group{}, err
	}
	if reply.UUID == "" {
		return Group{}, fmt.Errorf("%w: group %q not created", ErrRejected, name)
	}
	return Group{Name: reply.Name, UUID: reply.UUID}, nil
}

// GetLogins returns the entries matching url across the given associations,
// in the order KeePassXC sent them.
func (c *Client) GetLogins(ctx context.Context, url string, keys []KeyPair) ([]LoginEntry, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	var reply getLoginsReply
	req := getLoginsRequest{Action: ActionGetLogins, URL: url, Keys: keys}
	if err := c.send(ctx, nonce, ActionGetLogins, req, &reply, false); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

// SetLogin creates or updates an entry. The result is returned as sent;
// interpreting it is up to the caller.
func (c *Client) SetLogin(ctx context.Context, p SetLoginParams) (SetLoginResult, error) {
	nonce, err := newNonce()
	if err != nil {
		return SetLoginResult{}, err
	}
	req := setLoginRequest{
		Action:    ActionSetLogin,
		URL:       p.URL,
		SubmitURL: p.SubmitURL,
		ID:        p.DatabaseID,
		Nonce:     encodeNonce(nonce),
		Login:     p.Login,
		Password:  p.Password,
		Group:     p.Group,
		GroupUUID: p.GroupUUID,
		UUID:      p.UUID,
	}
	var reply setLoginReply
	if err := c.send(ctx, nonce, ActionSetLogin, req, &reply, false); err != nil {
		return SetLoginResult{}, err
	}
	return SetLoginResult{
		Success:   reply.succeeded(),
		HasFlag:   reply.Success != nil,
		Error:     reply.Error,
		ErrorCode: string(reply.ErrorCode),
	}, nil
}

func (c *Client) send(ctx context.Context, nonce *[nonceSize]byte, action string, request any, out reply, triggerUnlock bool) error {
	plain, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}
	sealed := box.SealAfterPrecomputation(nil, plain, nonce, &c.shared)
	trigger := Boolean(triggerUnlock)
	req := envelope{
		Action:        action,
		Message:       base64.StdEncoding.EncodeToString(sealed),
		Nonce:         encodeNonce(nonce),
		ClientID:      c.clientID,
		TriggerUnlock: &trigger,
	}

	c.logger.Debug("sending keepassxc request", logging.Action(action))
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != "" || resp.ErrorCode != "" {
		return envelopeError(resp)
	}

	data, err := c.open(resp, nonce)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s reply: %v", ErrProtocol, action, err)
	}
	if got := out.header().Action; got != "" && got != action {
		return fmt.Errorf("%w: %s reply claims action %q", ErrProtocol, action, got)
	}
	return nil
}

func (c *Client) open(resp *envelope, sent *[nonceSize]byte) ([]byte, error) {
	if resp.Nonce == "" || resp.Message == "" {
		return nil, fmt.Errorf("%w: %s reply is missing nonce or message", ErrProtocol, resp.Action)
	}
	if err := checkNonce(resp.Nonce, sent); err != nil {
		return nil, fmt.Errorf("%w: %s reply: %v", ErrProtocol, resp.Action, err)
	}
	nonce, _ := decodeNonce(resp.Nonce)
	sealed, err := base64.StdEncoding.DecodeString(resp.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %s reply: decode message: %v", ErrProtocol, resp.Action, err)
	}
	plain, ok := box.OpenAfterPrecomputation(nil, sealed, nonce, &c.shared)
	if !ok {
		return nil, fmt.Errorf("%w: %s reply cannot be decrypted", ErrProtocol, resp.Action)
	}
	return plain, nil
}

// roundTrip writes one frame and reads frames until the matching reply.
// KeePassXC broadcasts lock state notifications to every connected client;
// those are skipped.
func (c *Client) roundTrip(ctx context.Context, req envelope) (*envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Action, err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Action, ctxErr(ctx, err))
	}

	for {
		var resp envelope
		if err := c.dec.Decode(&resp); err != nil {
			err = ctxErr(ctx, err)
			var netErr net.Error
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) || errors.Is(err, ctx.Err()) {
				return nil, fmt.Errorf("read %s reply: %w", req.Action, err)
			}
			return nil, fmt.Errorf("%w: read %s reply: %v", ErrProtocol, req.Action, err)
		}
		switch resp.Action {
		case req.Action:
			return &resp, nil
		case actionDatabaseLocked, actionDatabaseUnlocked:
			c.logger.Debug("skipping keepassxc notification", logging.Action(resp.Action))
		default:
			return nil, fmt.Errorf("%w: got %q in reply to %q", ErrProtocol, resp.Action, req.Action)
		}
	}
}

func checkNonce(got string, sent *[nonceSize]byte) error {
	nonce, err := decodeNonce(got)
	if err != nil {
		return err
	}
	if *nonce != incrementNonce(*sent) {
		return errors.New("nonce does not follow request nonce")
	}
	return nil
}

func envelopeError(resp *envelope) error {
	return &Error{
		Action:  resp.Action,
		Message: resp.Error,
		Code:    string(resp.ErrorCode),
	}
}

func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
