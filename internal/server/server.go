package server

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-devhub/internal/database"
	"github.com/npezzotti/go-devhub/internal/moderation"
	"github.com/npezzotti/go-devhub/internal/stats"
	"github.com/npezzotti/go-devhub/internal/types"
)

const (
	storeTimeout        = 5 * time.Second
	moderationTimeout   = 10 * time.Second
	minModerationLength = 10
)

var serverMetrics = []string{
	stats.NumActiveClients,
	stats.NumOnlineUsers,
	stats.MessagesRelayed,
	stats.MessagesDropped,
	stats.MessagesFlagged,
}

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log            *log.Logger
	db             database.CommunityRepository
	stats          stats.StatsProvider
	classifier     moderation.Classifier
	presence       *Presence
	membership     *Membership
	clients        map[string]*Client
	clientsLock    sync.RWMutex
	deRegisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
	tasks          *taskGroup
}

func NewChatServer(logger *log.Logger, db database.CommunityRepository, su stats.StatsProvider, classifier moderation.Classifier) (*ChatServer, error) {
	for _, name := range serverMetrics {
		su.RegisterMetric(name)
	}

	if classifier == nil {
		classifier = moderation.Noop{}
	}

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		classifier:     classifier,
		presence:       NewPresence(),
		membership:     NewMembership(),
		clients:        make(map[string]*Client),
		deRegisterChan: make(chan *Client, 64),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
		tasks:          &taskGroup{},
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %q", client.id)
			cs.removeClient(client)
		case req := <-cs.stop:
			cs.log.Println("stopping clients")
			cs.clientsLock.RLock()
			for _, c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			cs.log.Println("waiting for moderation tasks")
			cs.tasks.Close()

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient adds the client to the server and places it in the default room.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.log.Printf("adding connection %q", c.id)
	cs.addClient(c)
}

func (cs *ChatServer) deregister(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c.id] = c
	cs.clientsLock.Unlock()

	cs.membership.Join(c.id, DefaultRoom)
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	if _, ok := cs.clients[c.id]; !ok {
		cs.clientsLock.Unlock()
		return
	}
	delete(cs.clients, c.id)
	cs.clientsLock.Unlock()

	cs.membership.Leave(c.id)
	cs.stats.Decr(stats.NumActiveClients)

	// connections that never announced leave silently
	profile, ok := cs.presence.Remove(c.id)
	if !ok {
		return
	}

	cs.stats.Decr(stats.NumOnlineUsers)
	cs.broadcastAll(newServerEvent(EventUserLeft, profile), c)
	cs.broadcastAll(newServerEvent(EventOnlineUsers, cs.presence.Snapshot()), nil)
}

func (cs *ChatServer) getClient(id string) (*Client, bool) {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	c, ok := cs.clients[id]
	return c, ok
}

// OnlineCount is the number of connections that have announced a profile.
func (cs *ChatServer) OnlineCount() int {
	return cs.presence.Len()
}

func (cs *ChatServer) OnlineUsers() []types.Profile {
	return cs.presence.Snapshot()
}

func (cs *ChatServer) handleEvent(c *Client, ev *ClientEvent) {
	switch ev.Event {
	case EventUserJoined:
		var profile types.Profile
		if err := json.Unmarshal(ev.Data, &profile); err != nil || profile.Id == 0 {
			c.queueMessage(errorEvent("invalid profile"))
			return
		}
		cs.announce(c, profile)
	case EventJoinRoom:
		var room string
		if err := json.Unmarshal(ev.Data, &room); err != nil {
			c.queueMessage(errorEvent("invalid room"))
			return
		}
		cs.joinRoom(c, room)
	case EventChatMessage:
		var payload ChatPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			c.queueMessage(errorEvent("invalid chat message"))
			return
		}
		cs.submit(c, &payload)
	default:
		c.queueMessage(errorEvent("unknown event"))
	}
}

func (cs *ChatServer) announce(c *Client, profile types.Profile) {
	if !cs.presence.Announce(c.id, profile) {
		cs.stats.Incr(stats.NumOnlineUsers)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := cs.db.TouchLastActive(ctx, profile.Id); err != nil {
		cs.log.Printf("touch last active for user %d: %v", profile.Id, err)
	}

	cs.broadcastAll(newServerEvent(EventOnlineUsers, cs.presence.Snapshot()), nil)
	cs.broadcastAll(newServerEvent(EventUserJoined, profile), c)

	badges, err := cs.db.ListBadges(ctx, profile.Id)
	if err != nil {
		cs.log.Printf("list badges for user %d: %v", profile.Id, err)
		return
	}

	c.queueMessage(newServerEvent(EventUserBadges, badgesFromRecords(badges)))
}

func (cs *ChatServer) joinRoom(c *Client, room string) {
	prev := cs.membership.Join(c.id, room)
	cs.log.Printf("connection %q moved from room %q to %q", c.id, prev, room)
}

// submit stores a chat message and, only once it is stored, broadcasts it to the
// connections in its room at that moment. Failures are logged and the message dropped.
func (cs *ChatServer) submit(c *Client, payload *ChatPayload) {
	authorId := payload.UserId
	if authorId == 0 {
		if profile, ok := cs.presence.Get(c.id); ok {
			authorId = profile.Id
		}
	}
	if authorId == 0 {
		cs.log.Printf("dropping message from %q: no author", c.id)
		cs.stats.Incr(stats.MessagesDropped)
		return
	}

	if strings.TrimSpace(payload.Text) == "" && payload.Code == nil && payload.File == nil {
		cs.log.Printf("dropping empty message from %q", c.id)
		cs.stats.Incr(stats.MessagesDropped)
		return
	}

	room := payload.Room
	if room == "" {
		room, _ = cs.membership.Room(c.id)
	}
	if room == "" {
		room = DefaultRoom
	}

	rec := database.Message{
		UserId:    authorId,
		Text:      payload.Text,
		Room:      room,
		Type:      string(payload.messageType()),
		CreatedAt: Now(),
	}
	if payload.Code != nil {
		rec.CodeLanguage = payload.Code.Language
		rec.Code = payload.Code.Code
	}
	if payload.File != nil {
		rec.FileName = payload.File.Name
		rec.FileUrl = payload.File.Url
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	stored, err := cs.db.CreateMessage(ctx, rec)
	if err != nil {
		cs.log.Printf("store message from user %d in %q: %v", authorId, room, err)
		cs.stats.Incr(stats.MessagesDropped)
		return
	}

	full, err := cs.db.GetMessageWithAuthor(ctx, stored.Id)
	if err != nil {
		cs.log.Printf("load message %d: %v", stored.Id, err)
		cs.stats.Incr(stats.MessagesDropped)
		return
	}

	msg := MessageFromRecord(full)
	cs.broadcastRoom(room, newServerEvent(EventChatMessage, msg))
	cs.stats.Incr(stats.MessagesRelayed)

	cs.moderate(msg)
}

// moderate classifies long messages in the background. The outcome is only logged.
func (cs *ChatServer) moderate(msg types.Message) {
	if utf8.RuneCountInString(msg.Text) <= minModerationLength {
		return
	}

	cs.tasks.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), moderationTimeout)
		defer cancel()

		res, err := cs.classifier.Classify(ctx, msg.Text)
		if err != nil {
			cs.log.Printf("moderation for message %d: %v", msg.Id, err)
			return
		}

		if res.Flagged {
			cs.stats.Incr(stats.MessagesFlagged)
			cs.log.Printf("message %d from user %d flagged: toxicity %.2f", msg.Id, msg.UserId, res.Toxicity)
			return
		}

		cs.log.Printf("message %d toxicity %.2f", msg.Id, res.Toxicity)
	})
}

func (cs *ChatServer) broadcastAll(ev *ServerEvent, skip *Client) {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	for _, c := range cs.clients {
		if c == skip {
			continue
		}
		c.queueMessage(ev)
	}
}

func (cs *ChatServer) broadcastRoom(room string, ev *ServerEvent) {
	for _, id := range cs.membership.Members(room) {
		if c, ok := cs.getClient(id); ok {
			c.queueMessage(ev)
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// taskGroup runs detached tasks and lets shutdown wait for them.
type taskGroup struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (g *taskGroup) Go(f func()) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		f()
	}()
	return true
}

func (g *taskGroup) Wait() {
	g.wg.Wait()
}

func (g *taskGroup) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.wg.Wait()
}
