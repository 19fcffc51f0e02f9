package gateway

import (
	"chat-relay/errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func httpStatus(err error) int {
	switch errors.Code(err) {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toErrorResponse(err error) errorResponse {
	st := status.Convert(errors.MapToGRPCError(err))
	return errorResponse{Code: st.Code().String(), Error: st.Message()}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(httpStatus(err), toErrorResponse(err))
}
