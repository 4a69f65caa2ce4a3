package studio

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client - 스튜디오에 연결된 웹소켓
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// clientMessage - 클라이언트 → 서버. 현재는 상태 재요청만 지원
type clientMessage struct {
	Type string `json:"type"`
}

// addClient - 연결 등록 후 현재 상태를 한 번 보냄
func (s *Studio) addClient(client *Client) {
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.lastActivity = time.Now()
	count := len(s.clients)
	s.mu.Unlock()

	log.Printf("👤 [Studio] %s connected (clients: %d)", s.userID, count)
	s.sendState(client)
}

func (s *Studio) removeClient(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	count := len(s.clients)
	s.lastActivity = time.Now()
	s.mu.Unlock()

	log.Printf("👋 [Studio] %s disconnected (clients: %d)", s.userID, count)
}

func (s *Studio) sendState(client *Client) {
	view := s.View()
	data, err := json.Marshal(map[string]interface{}{"type": "state", "state": view})
	if err != nil {
		log.Printf("Error marshaling state: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// broadcast - 연결된 모든 클라이언트에게 전송. 버퍼가 찬 클라이언트는 끊음
func (s *Studio) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event.Type, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(s.clients, client)
		}
	}
}

// readPump - 클라이언트 메시지 읽기. 연결이 끊기면 세션에서 제거
func (c *Client) readPump(s *Studio) {
	defer func() {
		s.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var message clientMessage
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		switch message.Type {
		case "request_state":
			s.sendState(c)
		case "ping":
			s.touch()
		}
	}
}

// writePump - send 채널 → 웹소켓
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
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
