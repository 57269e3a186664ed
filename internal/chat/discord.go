package chat

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

const eventBufferSize = 256

// Discord adapts a discordgo session to the Sender interface and exposes the
// inbound message stream as a channel.
type Discord struct {
	logger *log.Logger
	events chan Event
	dms    *channelCache

	mu      sync.Mutex
	session *discordgo.Session
}

func NewDiscord(logger *log.Logger) *Discord {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Discord{
		logger: logger,
		events: make(chan Event, eventBufferSize),
		dms:    newChannelCache(),
	}
}

// Events is the inbound stream. It is closed when the client closes.
func (d *Discord) Events() <-chan Event {
	return d.events
}

func (d *Discord) Open(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return fmt.Errorf("discord client already open")
	}

	s, err := discordgo.New(normalizeBotToken(token))
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	s.AddHandler(d.handleMessage)
	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	d.session = s
	d.logger.Printf("discord client started")
	return nil
}

func (d *Discord) Close() error {
	d.mu.Lock()
	s := d.session
	d.session = nil
	d.mu.Unlock()

	if s == nil {
		return nil
	}
	close(d.events)
	if err := s.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	d.logger.Printf("discord client stopped")
	return nil
}

func (d *Discord) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}

	event := Event{
		UserID:        m.Author.ID,
		ChannelID:     m.ChannelID,
		Text:          m.Content,
		Hidden:        m.Author.Bot || strings.TrimSpace(m.Content) == "",
		DirectMessage: m.GuildID == "",
	}
	if event.DirectMessage && !event.Hidden {
		d.dms.register(event.UserID, event.ChannelID)
	}

	select {
	case d.events <- event:
	default:
		d.logger.Printf("event buffer full, dropping message from %s", event.UserID)
	}
}

func (d *Discord) ResolveDirectChannel(userID string) (string, error) {
	if channelID, ok := d.dms.lookup(userID); ok {
		return channelID, nil
	}

	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s == nil {
		return "", fmt.Errorf("discord client is not open")
	}

	channel, err := s.UserChannelCreate(userID)
	if err != nil {
		return "", fmt.Errorf("create dm channel for %s: %w", userID, err)
	}
	d.dms.register(userID, channel.ID)
	return channel.ID, nil
}

func (d *Discord) SendMessage(channelID, text string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s == nil {
		return fmt.Errorf("discord client is not open")
	}

	_, err := s.ChannelMessageSend(channelID, text)
	return err
}

func normalizeBotToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bot ") {
		return token
	}
	return "Bot " + token
}
