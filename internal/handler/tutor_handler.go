package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/errcode"
	"github.com/edustack/tutord/internal/pkg/response"
	"github.com/edustack/tutord/internal/service"
)

type TutorHandler struct {
	tutor *service.TutorService
}

func NewTutorHandler(tutor *service.TutorService) *TutorHandler {
	return &TutorHandler{tutor: tutor}
}

type askRequest struct {
	OwnerID  string `json:"owner_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type askResponse struct {
	Answer     string           `json:"answer"`
	Citations  []model.Citation `json:"citations"`
	NoMaterial bool             `json:"no_material"`
}

type traceView struct {
	ID        string           `json:"id"`
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Citations []model.Citation `json:"citations"`
	Ctime     int64            `json:"ctime"`
}

func (h *TutorHandler) Traces(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	traces, err := h.tutor.Traces(c.Request.Context(), ownerID(c), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]traceView, 0, len(traces))
	for _, trace := range traces {
		views = append(views, traceView{
			ID:        trace.ID,
			Question:  trace.Question,
			Answer:    trace.Answer,
			Citations: trace.Citations,
			Ctime:     trace.Ctime,
		})
	}
	response.Success(c, gin.H{"traces": views})
}

func (h *TutorHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	answer, err := h.tutor.Ask(c.Request.Context(), req.OwnerID, req.Question, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, askResponse{
		Answer:     answer.Text,
		Citations:  answer.Citations,
		NoMaterial: answer.NoMaterial,
	})
}
