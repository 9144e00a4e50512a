package httpapi

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires the ten endpoints of spec §6 onto h, grounded on
// ShrutiLad242-job-service/main.go's flat gin.Engine route table.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger())

	r.GET("/health", h.Health)

	t := r.Group("/transcribe")
	{
		t.POST("/", h.CreateTranscription)
		t.POST("/batch-audio", h.CreateBatchAudio)
		t.POST("/extract-audio", h.ExtractAudio)
		t.POST("/batch-video", h.CreateBatchVideo)
		t.GET("/", h.ListTasks)
		t.GET("/:task_id", h.GetTask)
		t.GET("/:task_id/download", h.Download)
		t.POST("/:task_id/cancel", h.Cancel)
		t.DELETE("/:task_id", h.Delete)
	}

	return r
}
