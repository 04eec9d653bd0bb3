package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// bind fills obj from the query string and then from the request body,
// which may be a form, a multipart form or JSON.
func bind(c *gin.Context, obj any) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		return err
	}
	if c.Request.Method == "GET" || c.Request.ContentLength == 0 {
		return nil
	}

	contentType := c.ContentType()
	switch {
	case contentType == binding.MIMEJSON:
		return c.ShouldBindJSON(obj)
	case contentType == binding.MIMEPOSTForm, strings.HasPrefix(contentType, binding.MIMEMultipartPOSTForm):
		return c.ShouldBind(obj)
	default:
		return nil
	}
}
