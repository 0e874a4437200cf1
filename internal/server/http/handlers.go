package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fission/internal/notes"
	"fission/internal/store"
)

type recordRequest struct {
	Title      string `json:"title"`
	Transcript string `json:"transcript"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type doneRequest struct {
	Done *bool `json:"done"`
}

type settingRequest struct {
	Value string `json:"value"`
}

type extractRequest struct {
	Transcript string `json:"transcript"`
}

type meetingResponse struct {
	Meeting store.Meeting `json:"meeting"`
	Tasks   []store.Task  `json:"tasks"`
}

type extractResponse struct {
	Status string   `json:"status"`
	Items  []string `json:"items"`
	Error  string   `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime"`
	Model   notes.ModelStatus `json:"model"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Model:   s.svc.ModelStatus(),
	})
}

func (s *Server) handleListMeetings(c *gin.Context) {
	meetings, err := s.svc.Meetings(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meetings)
}

func (s *Server) handleRecordMeeting(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	outcome, err := s.svc.SaveRecording(c.Request.Context(), req.Title, req.Transcript)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, outcome)
}

func (s *Server) handleGetMeeting(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	meeting, err := s.svc.Meeting(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	tasks, err := s.svc.Tasks(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meetingResponse{Meeting: *meeting, Tasks: tasks})
}

func (s *Server) handleRenameMeeting(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	if err := s.svc.RenameMeeting(c.Request.Context(), id, req.Title); err != nil {
		s.writeError(c, err)
		return
	}
	meeting, err := s.svc.Meeting(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meeting)
}

func (s *Server) handleDeleteMeeting(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.svc.DeleteMeeting(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListTasks(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	tasks, err := s.svc.Tasks(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleAddTask(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	task, err := s.svc.AddTask(c.Request.Context(), id, req.Content)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleEditTask(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	if err := s.svc.EditTask(c.Request.Context(), id, req.Content); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondTask(c, id)
}

func (s *Server) handleSetTaskDone(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req doneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	if req.Done == nil {
		s.writeBadRequest(c, "done is required", nil)
		return
	}
	if err := s.svc.SetTaskDone(c.Request.Context(), id, *req.Done); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondTask(c, id)
}

func (s *Server) respondTask(c *gin.Context, id int64) {
	task, err := s.svc.Task(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.svc.DeleteTask(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSummary(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	outcome, err := s.svc.Summarize(c.Request.Context(), id, c.Query("style"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	res := s.svc.ExtractPreview(c.Request.Context(), req.Transcript)
	resp := extractResponse{Status: string(res.Status), Items: res.Items}
	if resp.Items == nil {
		resp.Items = []string{}
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetSetting(c *gin.Context) {
	key := c.Param("key")
	value, ok, err := s.svc.Setting(c.Request.Context(), key)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		s.writeError(c, store.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (s *Server) handlePutSetting(c *gin.Context) {
	key := c.Param("key")
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBadRequest(c, "invalid request body", err)
		return
	}
	if err := s.svc.SetSetting(c.Request.Context(), key, req.Value); err != nil {
		s.writeError(c, err)
		return
	}
	value, _, err := s.svc.Setting(c.Request.Context(), key)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (s *Server) handleModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.ModelStatus())
}

// handlePrepareModel provisions the weights. With ?wait=true it blocks and
// returns the handle; otherwise it starts in the background and progress is
// streamed on /api/events.
func (s *Server) handlePrepareModel(c *gin.Context) {
	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if wait {
		handle, err := s.svc.PrepareModel(c.Request.Context(), nil, nil)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, handle)
		return
	}

	s.prepareMu.Lock()
	if s.preparing {
		s.prepareMu.Unlock()
		c.JSON(http.StatusAccepted, gin.H{"status": "already provisioning"})
		return
	}
	s.preparing = true
	s.prepareWG.Add(1)
	s.prepareMu.Unlock()

	go s.prepareInBackground(s.baseCtx)
	c.JSON(http.StatusAccepted, gin.H{"status": "provisioning"})
}

func (s *Server) prepareInBackground(ctx context.Context) {
	defer s.prepareWG.Done()
	defer func() {
		s.prepareMu.Lock()
		s.preparing = false
		s.prepareMu.Unlock()
	}()

	handle, err := s.svc.PrepareModel(ctx, nil, nil)
	if err != nil {
		s.logger.Warn("Background model provisioning failed: %v", err)
		return
	}
	s.logger.Info("Model ready at %s (%s)", handle.Path, handle.Source)
}
