package api

import (
	"net/http"
	"strings"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const msgInvalidBody = "Pedido inválido"

// mustActor returns the caller or aborts with 401.
func mustActor(c *gin.Context) (service.Actor, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, service.PublicMessage(service.ErrMissingToken))
	}
	return actor, ok
}

// objectIDParam parses a path parameter or aborts with 400.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "ID inválido")
		return primitive.NilObjectID, false
	}
	return id, true
}

// bindJSON decodes the body or aborts with 400.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// parseOptionalDate reads "YYYY-MM-DD" (or RFC3339); empty means absent.
func parseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// formUpload opens a multipart file. The caller closes it.
func formUpload(c *gin.Context, field string) (*service.Upload, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, func() {}, service.ErrFileRequired
	}
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, service.ErrFileRequired
	}
	upload := &service.Upload{
		Body:        f,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	}
	return upload, func() { _ = f.Close() }, nil
}
