// Package httputils provides HTTP utility functions.
package httputils

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// WriteResponse writes the response to the client.
// It handles both success and error cases, ensuring consistent response format.
func WriteResponse(c *gin.Context, err error, data interface{}) {
	if err != nil {
		var resp *response.Response
		var errno *errors.Errno
		if stderrors.As(err, &errno) {
			resp = response.Err(errno)
		} else {
			resp = response.Err(errors.ErrInternal)
		}
		defer response.Release(resp)
		resp.WithRequestID(c.GetString(RequestIDKey))
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	if resp, ok := data.(*response.Response); ok {
		defer response.Release(resp)
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	resp := response.Success(data)
	defer response.Release(resp)
	resp.WithRequestID(c.GetString(RequestIDKey))
	c.JSON(resp.HTTPStatus(), resp)
}

// Abort writes an error response and stops the handler chain.
func Abort(c *gin.Context, err error) {
	WriteResponse(c, err, nil)
	c.Abort()
}
