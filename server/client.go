package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
)

// WebSocket timeouts follow the gorilla chat example
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512

	sendBufferSize = 64
)

// jobEvent is one message on the job stream.
type jobEvent struct {
	Type string        `json:"type"` // "job_update"
	Job  JobDescriptor `json:"job"`
}

// streamClient is one websocket subscriber to job updates
type streamClient struct {
	id        string
	conn      *websocket.Conn
	send      chan jobEvent
	server    *HarvesterServer
	closeOnce sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func (s *HarvesterServer) upgrader() *websocket.Upgrader {
	origins := s.config().GetServerAllowedOrigins()
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// GET /api/jobs/stream upgrades to a websocket that receives every job
// update as a jobEvent.
func (s *HarvesterServer) handleJobStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log(r).Debugw("Websocket upgrade failed", logger.FieldError, err)
		return
	}

	c := &streamClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan jobEvent, sendBufferSize),
		server: s,
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = true
	s.mu.Unlock()
	s.logger.Debugw("Stream client connected", "client_id", c.id)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
}

func (s *HarvesterServer) removeClient(c *streamClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.close()
		s.logger.Debugw("Stream client disconnected", "client_id", c.id)
	}
}

// readPump drains control frames until the peer goes away.
func (c *streamClient) readPump() {
	defer c.server.removeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("Websocket read error", "client_id", c.id, logger.FieldError, err)
			}
			return
		}
	}
}

// writePump writes job events and keeps the connection alive with pings.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.server.logger.Debugw("Job event write error", "client_id", c.id, logger.FieldError, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcastJobs fans queue updates out to stream clients. Slow clients
// miss events rather than stall the queue.
func (s *HarvesterServer) broadcastJobs(updates chan *async.Job) {
	defer s.queue.Unsubscribe(updates)

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-updates:
			s.publish(job)
		}
	}
}

func (s *HarvesterServer) publish(job *async.Job) {
	ev := jobEvent{Type: "job_update", Job: describeJob(job, false)}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			s.logger.Debugw("Dropped job event for slow client", "client_id", c.id, logger.FieldJobID, job.ID)
		}
	}
}
