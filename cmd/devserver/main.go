// Devserver is a local mock of the chat backend contract, used to run
// the widget engine end-to-end during development. It answers the
// realtime channel, the fallback chat endpoint, the upload endpoint and
// the message mutation endpoints with canned in-memory behavior.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sentinal-widget/internal/config"
	"sentinal-widget/internal/events"
	"sentinal-widget/internal/uploader"
	"sentinal-widget/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type server struct {
	log *logger.Logger
	cfg *config.Config
}

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.AppMode)
	defer log.Sync()

	if cfg.AppMode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &server{log: log, cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", s.handleWebSocket)
	r.POST("/api/v1/chat", s.handleChat)
	r.POST("/api/v1/uploads", s.handleUpload)
	r.POST("/api/v1/messages/:id/reactions", s.handleReaction)
	r.PATCH("/api/v1/messages/:id", s.handleEdit)
	r.DELETE("/api/v1/messages/:id", s.handleDelete)

	port := os.Getenv("DEVSERVER_PORT")
	if port == "" {
		port = "8080"
	}
	log.Infof("devserver listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Errorf("devserver stopped: %v", err)
		os.Exit(1)
	}
}

func (s *server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	convID := c.Query("conversation_id")
	s.log.Infof("realtime client connected: conversation=%s", convID)

	write := func(v interface{}) {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(v); err != nil {
			s.log.Warnf("write failed: %v", err)
		}
	}

	write(gin.H{"type": events.TypeConnectionEstablished, "connection_id": uuid.NewString()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Infof("realtime client gone: %v", err)
			return
		}
		var frame struct {
			Type            string `json:"type"`
			ClientMessageID string `json:"client_message_id"`
			Content         string `json:"content"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			write(gin.H{"type": events.TypeError, "message": "malformed frame"})
			continue
		}

		switch frame.Type {
		case events.TypePing:
			// Keepalive, nothing to answer.
		case events.TypeTypingStart, events.TypeTypingStop:
			s.log.Debugf("typing signal: %s", frame.Type)
		case events.TypeChatMessage:
			serverID := uuid.NewString()
			write(gin.H{
				"type":              events.TypeStatusUpdate,
				"message_id":        serverID,
				"client_message_id": frame.ClientMessageID,
				"status":            "delivered",
			})
			write(gin.H{
				"type":       events.TypeAIResponse,
				"message_id": uuid.NewString(),
				"message":    reply(frame.Content),
				"created_at": time.Now().UTC(),
			})
			write(gin.H{
				"type":       events.TypeStatusUpdate,
				"message_id": serverID,
				"status":     "read",
			})
		default:
			write(gin.H{"type": events.TypeError, "message": fmt.Sprintf("unsupported frame %q", frame.Type)})
		}
	}
}

func (s *server) handleChat(c *gin.Context) {
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response":  reply(req.Message),
		"sessionId": req.ConversationID,
		"messageId": uuid.NewString(),
		"metadata":  gin.H{"source": "devserver"},
	})
}

func (s *server) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file part"})
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if size > s.cfg.Upload.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	id := uuid.NewString()
	c.JSON(http.StatusCreated, gin.H{
		"attachment": gin.H{
			"id":         id,
			"kind":       uploader.KindForContentType(header.Header.Get("Content-Type")),
			"filename":   header.Filename,
			"size_bytes": size,
			"url":        "/files/" + id,
		},
	})
}

func (s *server) handleReaction(c *gin.Context) {
	s.log.Infof("reaction on %s", c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *server) handleEdit(c *gin.Context) {
	s.log.Infof("edit of %s", c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *server) handleDelete(c *gin.Context) {
	s.log.Infof("delete of %s", c.Param("id"))
	c.Status(http.StatusNoContent)
}

func reply(input string) string {
	if input == "" {
		return "I received your attachment."
	}
	return "You said: " + input
}
