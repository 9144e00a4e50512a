// Package response centralizes the orchestrator's HTTP error/success
// envelope. Grounded on
// celalettindemir-make-singer-backend/pkg/response/response.go, ported
// from Fiber's *fiber.Ctx to gin's *gin.Context since the teacher
// (ShrutiLad242-job-service) routes with gin.
package response

import "github.com/gin-gonic/gin"

// Error codes, one per spec §7 taxonomy entry.
const (
	CodeValidation       = "validation_error"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeTooLarge         = "too_large"
	CodeUnsupportedMedia = "unsupported_media"
	CodeQueueFull        = "queue_full"
	CodeStorageError     = "storage_error"
	CodeInternal         = "internal_error"
	CodeDecoderTimeout   = "decoder_timeout"
	CodeUploadTimeout    = "upload_timeout"
)

type errorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type errorBody struct {
	Detail string      `json:"detail"`
	Error  errorDetail `json:"error"`
}

// Error writes the standard {"detail": "...", "error": {...}} body.
// "detail" alone matches spec §6/§7's literal `{detail: string}`
// contract; the nested "error" object carries the discriminated code
// for clients that want it without breaking the simpler shape.
func Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{
		Detail: message,
		Error:  errorDetail{Code: code, Message: message},
	})
}

func Validation(c *gin.Context, message string)       { Error(c, 400, CodeValidation, message) }
func NotFound(c *gin.Context, message string)         { Error(c, 404, CodeNotFound, message) }
func Conflict(c *gin.Context, message string)         { Error(c, 409, CodeConflict, message) }
func TooLarge(c *gin.Context, message string)         { Error(c, 413, CodeTooLarge, message) }
func UnsupportedMedia(c *gin.Context, message string) { Error(c, 415, CodeUnsupportedMedia, message) }
func QueueFull(c *gin.Context, message string)        { Error(c, 503, CodeQueueFull, message) }
func DecoderTimeout(c *gin.Context, message string)   { Error(c, 504, CodeDecoderTimeout, message) }
func UploadTimeout(c *gin.Context, message string)    { Error(c, 408, CodeUploadTimeout, message) }
func Storage(c *gin.Context, message string)          { Error(c, 500, CodeStorageError, message) }
func Internal(c *gin.Context, message string)         { Error(c, 500, CodeInternal, message) }

func OK(c *gin.Context, data interface{})       { c.JSON(200, data) }
func Created(c *gin.Context, data interface{})  { c.JSON(201, data) }
func Accepted(c *gin.Context, data interface{}) { c.JSON(202, data) }
func NoContent(c *gin.Context)                  { c.Status(204) }
