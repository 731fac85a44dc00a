package response

import "github.com/gin-gonic/gin"

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError writes an error body whose "error" field clients can match on.
func RespondError(c *gin.Context, code int, errText string) {
	c.JSON(code, StandardApiResponse{
		Status:     "error",
		StatusCode: code,
		Message:    errText,
		Error:      errText,
	})
}

// AbortWithError is RespondError followed by aborting the handler chain.
func AbortWithError(c *gin.Context, code int, errText string) {
	RespondError(c, code, errText)
	c.Abort()
}
