package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chatsphere/internal/events"
	"chatsphere/internal/models"
	"chatsphere/internal/registry"
	"chatsphere/internal/router"
	"chatsphere/internal/signaling"
	"chatsphere/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

type fakeGateway struct {
	mu         sync.Mutex
	nextID     int
	messages   map[int]*models.Message
	users      map[int]*models.User
	groups     map[int]map[int]struct{}
	failCreate bool
}

func newFakeGateway() *fakeGateway {
	g := &fakeGateway{
		messages: make(map[int]*models.Message),
		users:    make(map[int]*models.User),
		groups:   make(map[int]map[int]struct{}),
	}
	for _, u := range []*models.User{
		{ID: 1, Username: "alice", ProfilePic: "alice.png"},
		{ID: 2, Username: "bob", ProfilePic: "bob.png"},
		{ID: 3, Username: "carol", ProfilePic: "carol.png"},
	} {
		g.users[u.ID] = u
	}
	g.groups[5] = map[int]struct{}{1: {}, 2: {}, 3: {}}
	return g
}

func (g *fakeGateway) CreateMessage(_ context.Context, m *models.Message) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate {
		return nil, errStoreDown
	}
	g.nextID++
	m.ID = g.nextID
	m.Timestamp = time.Now().UTC()
	stored := *m
	g.messages[m.ID] = &stored
	return m, nil
}

func (g *fakeGateway) MarkRead(_ context.Context, messageIDs []int, readerID int) ([]*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var updated []*models.Message
	now := time.Now().UTC()
	for _, id := range messageIDs {
		m, ok := g.messages[id]
		if !ok || m.RecipientID != readerID || m.IsRead {
			continue
		}
		m.IsRead = true
		m.ReadAt = &now
		copied := *m
		updated = append(updated, &copied)
	}
	return updated, nil
}

func (g *fakeGateway) GetGroupMembers(_ context.Context, groupID int) (map[int]struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.groups[groupID]
	if !ok {
		return map[int]struct{}{}, nil
	}
	out := make(map[int]struct{}, len(members))
	for id := range members {
		out[id] = struct{}{}
	}
	return out, nil
}

func (g *fakeGateway) GetUser(_ context.Context, userID int) (*models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (g *fakeGateway) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

type harness struct {
	reg   *registry.Registry
	store *fakeGateway
	d     *Dispatcher
}

func newHarness() *harness {
	reg := registry.New()
	rt := router.New(reg)
	store := newFakeGateway()
	relay := signaling.New(rt, store)
	return &harness{reg: reg, store: store, d: New(reg, rt, store, relay)}
}

// connect registers a connection for the user and joins its own user room,
// the way a real client does right after the websocket opens.
func (h *harness) connect(t *testing.T, userID int) *registry.Connection {
	t.Helper()
	c := registry.NewConnection(userID, 16)
	h.reg.Register(c)
	require.NoError(t, h.reg.Join(c.ID, registry.UserRoom(userID)))
	drain(c)
	return c
}

func drain(c *registry.Connection) {
	for {
		select {
		case <-c.Outbound():
		default:
			return
		}
	}
}

func recv(t *testing.T, c *registry.Connection) (string, map[string]any) {
	t.Helper()
	select {
	case raw := <-c.Outbound():
		var env events.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		data := map[string]any{}
		if len(env.Data) > 0 {
			require.NoError(t, json.Unmarshal(env.Data, &data))
		}
		return env.Event, data
	default:
		t.Fatal("expected a frame, got none")
		return "", nil
	}
}

func assertSilent(t *testing.T, c *registry.Connection) {
	t.Helper()
	select {
	case raw := <-c.Outbound():
		t.Fatalf("expected no frame, got %s", raw)
	default:
	}
}

func handle(h *harness, c *registry.Connection, frame string) {
	h.d.Handle(context.Background(), c, []byte(frame))
}

func TestSendDirectMessage(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)
	carol := h.connect(t, 3)

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"text"}}`)

	event, data := recv(t, bob)
	assert.Equal(t, "new_message", event)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, float64(1), data["sender_id"])
	assert.Equal(t, "alice", data["sender_name"])
	assert.Equal(t, "hi", data["content"])
	assert.Equal(t, "text", data["message_type"])
	assert.Equal(t, false, data["is_read"])
	assert.NotEmpty(t, data["timestamp"])

	// Multi-device echo: the sender's own room gets the identical payload.
	echoEvent, echoData := recv(t, alice)
	assert.Equal(t, "new_message", echoEvent)
	assert.Equal(t, data, echoData)

	assertSilent(t, carol)

	stored := h.store.messages[1]
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.RecipientID)
	assert.False(t, stored.Timestamp.IsZero())
}

func TestSendDirectMessageMultiDevice(t *testing.T) {
	h := newHarness()
	phone := h.connect(t, 1)
	laptop := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, phone, `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"text"}}`)

	for _, c := range []*registry.Connection{phone, laptop, bob} {
		event, _ := recv(t, c)
		assert.Equal(t, "new_message", event)
	}
}

func TestSendGroupMessageOnlyToJoined(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)
	carol := h.connect(t, 3) // group member, but never joined group:5

	require.NoError(t, h.reg.Join(alice.ID, registry.GroupRoom(5)))
	require.NoError(t, h.reg.Join(bob.ID, registry.GroupRoom(5)))

	handle(h, alice, `{"event":"send_message","data":{"group_id":5,"content":"hello group","message_type":"text"}}`)

	event, data := recv(t, alice)
	assert.Equal(t, "new_message", event)
	assert.Equal(t, float64(5), data["group_id"])

	event, _ = recv(t, bob)
	assert.Equal(t, "new_message", event)

	assertSilent(t, carol)
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"no content or media", `{"event":"send_message","data":{"recipient_id":2,"message_type":"text"}}`},
		{"no target", `{"event":"send_message","data":{"content":"hi","message_type":"text"}}`},
		{"both targets", `{"event":"send_message","data":{"recipient_id":2,"group_id":5,"content":"hi","message_type":"text"}}`},
		{"bad type", `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"carrier_pigeon"}}`},
		{"call type via send", `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"voice_call"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			alice := h.connect(t, 1)
			bob := h.connect(t, 2)

			handle(h, alice, tt.frame)

			event, data := recv(t, alice)
			assert.Equal(t, "error", event)
			assert.NotEmpty(t, data["message"])
			assertSilent(t, bob)
			assert.Empty(t, h.store.messages, "validation failure must not persist")
		})
	}
}

func TestSendMessageMediaOnly(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"message_type":"image","media_url":"/media/cat.png"}}`)

	event, data := recv(t, bob)
	assert.Equal(t, "new_message", event)
	assert.Equal(t, "/media/cat.png", data["media_url"])
}

func TestStorageFailureSuppressesBroadcast(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)
	h.store.failCreate = true

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"text"}}`)

	event, data := recv(t, alice)
	assert.Equal(t, "error", event)
	assert.Equal(t, "Internal server error", data["message"])
	assertSilent(t, bob)
}

func TestTypingDirectGoesToRecipientOnly(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"typing","data":{"recipient_id":2,"is_typing":true}}`)

	event, data := recv(t, bob)
	assert.Equal(t, "user_typing", event)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, true, data["is_typing"])

	// Direct typing does not echo into the sender's own room.
	assertSilent(t, alice)
	assert.Empty(t, h.store.messages, "typing is never persisted")
}

func TestTypingGroupExcludesTypist(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)
	require.NoError(t, h.reg.Join(alice.ID, registry.GroupRoom(5)))
	require.NoError(t, h.reg.Join(bob.ID, registry.GroupRoom(5)))

	handle(h, alice, `{"event":"typing","data":{"group_id":5,"is_typing":true}}`)

	event, _ := recv(t, bob)
	assert.Equal(t, "user_typing", event)
	assertSilent(t, alice)
}

func TestTypingRequiresTarget(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)

	handle(h, alice, `{"event":"typing","data":{"is_typing":true}}`)

	event, _ := recv(t, alice)
	assert.Equal(t, "error", event)
}

func TestMessageReadNotifiesSender(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"text"}}`)
	drain(alice)
	drain(bob)

	handle(h, bob, `{"event":"message_read","data":{"message_ids":[1]}}`)

	event, data := recv(t, alice)
	assert.Equal(t, "messages_read", event)
	assert.Equal(t, []any{float64(1)}, data["message_ids"])

	assert.True(t, h.store.messages[1].IsRead)
}

func TestMessageReadRejectsForeignMessages(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)
	carol := h.connect(t, 3)

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"text"}}`)
	drain(alice)
	drain(bob)

	// Carol is not the recipient; nothing may change and nobody is notified.
	handle(h, carol, `{"event":"message_read","data":{"message_ids":[1]}}`)

	assert.False(t, h.store.messages[1].IsRead)
	assertSilent(t, alice)
	assertSilent(t, carol)
}

func TestMessageReadIsIdempotent(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"content":"hi","message_type":"text"}}`)
	drain(alice)
	drain(bob)

	handle(h, bob, `{"event":"message_read","data":{"message_ids":[1]}}`)
	drain(alice)

	handle(h, bob, `{"event":"message_read","data":{"message_ids":[1]}}`)
	assertSilent(t, alice)
}

func TestMessageReadBatchNotifiesFirstSenderOnly(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	carol := h.connect(t, 3)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"send_message","data":{"recipient_id":2,"content":"from alice","message_type":"text"}}`)
	handle(h, carol, `{"event":"send_message","data":{"recipient_id":2,"content":"from carol","message_type":"text"}}`)
	drain(alice)
	drain(carol)
	drain(bob)

	handle(h, bob, `{"event":"message_read","data":{"message_ids":[1,2]}}`)

	// One notification, to the sender of the first updated id; the other
	// sender hears nothing.
	event, data := recv(t, alice)
	assert.Equal(t, "messages_read", event)
	assert.Equal(t, []any{float64(1), float64(2)}, data["message_ids"])
	assertSilent(t, carol)
}

func TestJoinGroupRequiresMembership(t *testing.T) {
	h := newHarness()
	dave := registry.NewConnection(4, 16)
	h.reg.Register(dave)

	handle(h, dave, `{"event":"join_chat","data":{"room":"group:5"}}`)

	event, data := recv(t, dave)
	assert.Equal(t, "error", event)
	assert.Equal(t, "not a member of this group", data["message"])
	assert.Empty(t, h.reg.MembersOf(registry.GroupRoom(5)))
}

func TestJoinOtherUsersRoomRefused(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)

	handle(h, alice, `{"event":"join_chat","data":{"room":"user:2"}}`)

	event, _ := recv(t, alice)
	assert.Equal(t, "error", event)
	assert.Empty(t, h.reg.MembersOf(registry.UserRoom(2)))
}

func TestJoinGroupAsMember(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)

	handle(h, alice, `{"event":"join_chat","data":{"room":"group:5"}}`)

	event, data := recv(t, alice)
	assert.Equal(t, "joined_chat", event)
	assert.Equal(t, "group:5", data["room"])
	assert.Len(t, h.reg.MembersOf(registry.GroupRoom(5)), 1)
}

func TestJoinInvalidRoomKey(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)

	handle(h, alice, `{"event":"join_chat","data":{"room":"lobby"}}`)

	event, _ := recv(t, alice)
	assert.Equal(t, "error", event)
}

func TestLeaveChat(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	require.NoError(t, h.reg.Join(alice.ID, registry.GroupRoom(5)))

	handle(h, alice, `{"event":"leave_chat","data":{"room":"group:5"}}`)

	assert.Empty(t, h.reg.MembersOf(registry.GroupRoom(5)))
	assertSilent(t, alice)
}

func TestLogCall(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"log_call","data":{"recipient_id":2,"call_type":"video_call","duration":63,"status":"answered"}}`)

	event, data := recv(t, bob)
	assert.Equal(t, "new_message", event)
	assert.Equal(t, "Video Call", data["content"])
	assert.Equal(t, "video_call", data["message_type"])
	assert.Equal(t, float64(63), data["call_duration"])
	assert.Equal(t, "answered", data["call_status"])

	// Sender's room gets the message, then the ack goes only to the
	// originating connection.
	event, _ = recv(t, alice)
	assert.Equal(t, "new_message", event)
	event, data = recv(t, alice)
	assert.Equal(t, "call_logged", event)
	assert.Equal(t, float64(1), data["message_id"])
	assertSilent(t, bob)
}

func TestLogCallRejectsNonCallType(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)

	handle(h, alice, `{"event":"log_call","data":{"recipient_id":2,"call_type":"text","duration":5}}`)

	event, _ := recv(t, alice)
	assert.Equal(t, "error", event)
	assert.Empty(t, h.store.messages)
}

func TestUnknownEventRejected(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)

	handle(h, alice, `{"event":"teleport","data":{}}`)

	event, data := recv(t, alice)
	assert.Equal(t, "error", event)
	assert.Equal(t, "Unrecognized or malformed event", data["message"])
}

func TestCallInitiateRelayedThroughDispatcher(t *testing.T) {
	h := newHarness()
	alice := h.connect(t, 1)
	bob := h.connect(t, 2)

	handle(h, alice, `{"event":"call_initiate","data":{"recipient_id":2,"call_type":"video","room_id":"r1","offer":{"sdp":"v=0"}}}`)

	event, data := recv(t, bob)
	assert.Equal(t, "incoming_call", event)
	assert.Equal(t, "r1", data["room_id"])
	assert.Equal(t, "video", data["call_type"])
	assert.Equal(t, "alice", data["caller_name"])
	assert.Equal(t, map[string]any{"sdp": "v=0"}, data["offer"])
	assertSilent(t, alice)
}
