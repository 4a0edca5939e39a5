package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loqalabs/loqa-scribe/internal/documents"
	"github.com/loqalabs/loqa-scribe/internal/messaging"
)

type documentBody struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	StyleID string `json:"formatId"`
}

func (s *Server) listDocuments(c *gin.Context) {
	if s.deps.Documents == nil {
		fail(c, http.StatusServiceUnavailable, "document storage is not available", nil)
		return
	}
	docs, err := s.deps.Documents.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to list documents", err)
		return
	}
	if docs == nil {
		docs = []documents.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) saveDocument(c *gin.Context) {
	if s.deps.Documents == nil {
		fail(c, http.StatusServiceUnavailable, "document storage is not available", nil)
		return
	}
	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	doc, err := s.deps.Documents.Save(c.Request.Context(), documents.Document{
		Title:   body.Title,
		Content: body.Content,
		StyleID: body.StyleID,
	})
	switch {
	case errors.Is(err, documents.ErrEmptyContent):
		fail(c, http.StatusBadRequest, "Nothing to save", nil)
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to save document", err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) getDocument(c *gin.Context) {
	if s.deps.Documents == nil {
		fail(c, http.StatusServiceUnavailable, "document storage is not available", nil)
		return
	}
	doc, err := s.deps.Documents.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, documents.ErrNotFound):
		fail(c, http.StatusNotFound, "Document not found", nil)
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to load document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteDocument(c *gin.Context) {
	if s.deps.Documents == nil {
		fail(c, http.StatusServiceUnavailable, "document storage is not available", nil)
		return
	}
	err := s.deps.Documents.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, documents.ErrNotFound):
		fail(c, http.StatusNotFound, "Document not found", nil)
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to delete document", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type smsBody struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *Server) sendSMS(c *gin.Context) {
	if s.deps.Sender == nil || !s.deps.Sender.Configured() {
		fail(c, http.StatusServiceUnavailable, "SMS provider is not configured", nil)
		return
	}
	var body smsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sid, err := s.deps.Sender.Send(c.Request.Context(), body.To, body.Message)
	switch {
	case errors.Is(err, messaging.ErrInvalidMessage):
		fail(c, http.StatusBadRequest, `Missing "to" or "message"`, nil)
		return
	case errors.Is(err, messaging.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, "SMS provider is not configured", nil)
		return
	case err != nil:
		fail(c, http.StatusBadGateway, "SMS failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sid": sid})
}

func (s *Server) smsLink(c *gin.Context) {
	link, err := messaging.SMSLink(c.Query("to"), c.Query("body"))
	if err != nil {
		fail(c, http.StatusBadRequest, `Missing "to" or "body"`, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uri": link})
}
