package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Register(sessionID string, p models.Participant) chan models.ServerEvent
	Unregister(sessionID string)
	Send(from models.Participant, toID, text, emoji string) (models.Message, error)
	Typing(fromID, toID string, isTyping bool)
}

// Connection drives one live socket: a read pump feeding client events
// into the main loop, and the main loop multiplexing those against hub
// deliveries. The session binding state machine is unbound -> bound ->
// unbound; binding happens on the client's register event, never
// implicitly.
type Connection struct {
	ws          wsConnection
	hub         messageHub
	sessionID   string
	participant models.Participant
	fromClient  chan models.ClientEvent
	fromServer  chan models.ServerEvent
	errorCh     chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	sessionID string,
	participant models.Participant,
) *Connection {
	return &Connection{
		ws:          ws,
		hub:         hub,
		sessionID:   sessionID,
		participant: participant,
		fromClient:  make(chan models.ClientEvent),
		errorCh:     make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Unregister(c.sessionID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		// fromServer is nil until the register event binds this
		// session; a nil channel never fires in select.
		select {
		case ev := <-c.fromClient:
			if err := c.processClientEvent(ev); err != nil {
				return err
			}
		case ev := <-c.fromServer:
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(ev models.ClientEvent) error {
	switch ev.Type {
	case models.ClientEventRegister:
		// Identity comes from the authenticated token, not the
		// payload; a mismatched register is rejected outright.
		if ev.Identity != "" && ev.Identity != c.participant.ID {
			return c.reject("register identity does not match authenticated participant")
		}
		if c.fromServer == nil {
			c.fromServer = c.hub.Register(c.sessionID, c.participant)
		}
	case models.ClientEventSend:
		if _, err := c.hub.Send(c.participant, ev.To, ev.Text, ev.Emoji); err != nil {
			if errors.Is(err, models.ErrEmptyMessage) || errors.Is(err, models.ErrUnknownParticipant) {
				return c.reject(err.Error())
			}
			return err
		}
	case models.ClientEventTyping:
		c.hub.Typing(c.participant.ID, ev.To, ev.IsTyping)
	default:
		return c.reject("unknown event type")
	}

	return nil
}

// reject informs the sender without tearing the connection down.
// mainLoop is the only writer, so writing directly here is safe.
func (c *Connection) reject(reason string) error {
	return c.ws.WriteJSON(models.ServerEvent{
		Type:   models.ServerEventRejected,
		Reason: reason,
	})
}
