package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/interceptor"
)

// Session identity headers the edge resolves before handing the request to
// the pipeline.
const (
	headerSessionID = "X-Session-ID"
	headerUserID    = "X-User-ID"
)

// proxy runs the inbound request through the full interceptor pipeline and
// forwards the result upstream.
func (s *Server) proxy(c *gin.Context) {
	req, err := s.buildOutbound(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	processed, err := s.chain.Process(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, interceptor.ErrTransactionBlocked):
			c.JSON(http.StatusForbidden, gin.H{"error": "Transaction blocked by fraud analysis"})
		case errors.Is(err, interceptor.ErrNoSessionKey):
			c.JSON(http.StatusConflict, gin.H{"error": "Session key must be provisioned before sending sensitive data"})
		default:
			s.logger.Error("pipeline rejected request", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Request could not be processed"})
		}
		return
	}

	resp, err := s.dispatcher.Dispatch(c.Request.Context(), processed)
	if err != nil {
		s.logger.Error("upstream dispatch failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream unavailable"})
		return
	}

	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.Status, contentType, resp.Body)
}

func (s *Server) buildOutbound(c *gin.Context) (*interceptor.OutboundRequest, error) {
	path := c.Param("path")
	if query := c.Request.URL.RawQuery; query != "" {
		path += "?" + query
	}

	var body interface{}
	if c.Request.Body != nil {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				// Non-JSON bodies pass through opaque; the encrypt stage
				// only rewrites structured values.
				body = string(raw)
			}
		}
	}

	req := interceptor.NewOutboundRequest(c.Request.Method, path, body)
	req.SessionID = c.GetHeader(headerSessionID)
	req.UserID = c.GetHeader(headerUserID)
	req.ClientIP = c.ClientIP()
	if ct := c.GetHeader("Content-Type"); ct != "" {
		req.Headers.Set("Content-Type", ct)
	}
	return req, nil
}
