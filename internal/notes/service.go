// Package notes implements the recording flow and note management on top of
// the store and the two model pipelines.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"fission/internal/events"
	"fission/internal/extraction"
	"fission/internal/localmodel"
	"fission/internal/logging"
	"fission/internal/observability"
	"fission/internal/store"
	"fission/internal/summary"
)

var (
	// ErrTitleRequired rejects recordings and renames with a blank title.
	ErrTitleRequired = errors.New("title required")
	// ErrContentRequired rejects blank task text.
	ErrContentRequired = errors.New("task content required")
	// ErrNoProvisioner is returned by model operations when no provisioner is wired.
	ErrNoProvisioner = errors.New("model provisioner not configured")
)

const (
	processingStatus = "Analyzing transmission..."
	noticeSoft       = "Analysis incomplete: no action items could be read from the model output."
	noticeHardPrefix = "Core failure: "
)

// NoticeLevel grades the user-facing message attached to a recording.
type NoticeLevel string

const (
	NoticeNone NoticeLevel = ""
	NoticeSoft NoticeLevel = "soft"
	NoticeHard NoticeLevel = "hard"
)

// DefaultCacheSize bounds the summary cache when none is configured.
const DefaultCacheSize = 64

// Extractor is satisfied by *extraction.Extractor.
type Extractor interface {
	ExtractItems(ctx context.Context, transcript string) extraction.Result
}

// Summarizer is satisfied by *summary.Summarizer.
type Summarizer interface {
	GenerateSummary(ctx context.Context, title string, tasks []string, style summary.Style) summary.Result
}

// Provisioner is satisfied by *localmodel.Provisioner.
type Provisioner interface {
	ModelPath() string
	ModelExists() bool
	EnsureModelReady(ctx context.Context, onStatus localmodel.StatusFunc, onProgress localmodel.ProgressFunc) (localmodel.ModelHandle, error)
}

// EngineState is satisfied by *engine.Handle.
type EngineState interface {
	Ready() bool
}

// Deps wires a Service. Store, Extractor and Summarizer are required.
type Deps struct {
	Store       *store.Store
	Extractor   Extractor
	Summarizer  Summarizer
	Provisioner Provisioner
	Engine      EngineState
	Hub         *events.Hub
	Logger      logging.Logger
	CacheSize   int
}

// RecordingOutcome is what SaveRecording produced.
type RecordingOutcome struct {
	Meeting     store.Meeting     `json:"meeting"`
	Tasks       []store.Task      `json:"tasks"`
	Status      extraction.Status `json:"status"`
	Notice      string            `json:"notice,omitempty"`
	NoticeLevel NoticeLevel       `json:"notice_level,omitempty"`
}

// SummaryOutcome is a rendered summary plus where it came from.
type SummaryOutcome struct {
	MeetingID int64          `json:"meeting_id"`
	Style     summary.Style  `json:"style"`
	Text      string         `json:"text"`
	Source    summary.Source `json:"source"`
	Cached    bool           `json:"cached"`
}

// ModelStatus describes the local weights and engine.
type ModelStatus struct {
	Path        string `json:"path"`
	Present     bool   `json:"present"`
	EngineReady bool   `json:"engine_ready"`
	Status      string `json:"status,omitempty"`
}

// Service is the application layer shared by every delivery surface.
type Service struct {
	store       *store.Store
	extractor   Extractor
	summarizer  Summarizer
	provisioner Provisioner
	engine      EngineState
	hub         *events.Hub
	logger      logging.Logger
	cache       *lru.Cache[string, summary.Result]
}

// NewService validates deps and builds a Service.
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("notes: store is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("notes: extractor is required")
	}
	if deps.Summarizer == nil {
		return nil, errors.New("notes: summarizer is required")
	}
	size := deps.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, summary.Result](size)
	if err != nil {
		return nil, fmt.Errorf("create summary cache: %w", err)
	}
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("notes")
	}
	return &Service{
		store:       deps.Store,
		extractor:   deps.Extractor,
		summarizer:  deps.Summarizer,
		provisioner: deps.Provisioner,
		engine:      deps.Engine,
		hub:         deps.Hub,
		logger:      logger,
		cache:       cache,
	}, nil
}

// SaveRecording stores a new meeting and populates it with the action items
// extracted from transcript. An empty transcript falls back to the title;
// any other transcript is forwarded as given.
// Extraction failures are reported through the outcome's notice; only
// validation and persistence problems are returned as errors.
func (s *Service) SaveRecording(ctx context.Context, title, transcript string) (*RecordingOutcome, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	id, err := s.store.AddMeeting(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("save meeting: %w", err)
	}
	ctx = observability.ContextWithMeetingID(ctx, id)
	s.hub.Status(events.TypeProcessing, processingStatus)

	input := transcript
	if input == "" {
		input = title
	}
	result := s.extractor.ExtractItems(ctx, input)

	outcome := &RecordingOutcome{Status: result.Status}
	switch result.Status {
	case extraction.StatusSuccess:
		if _, err := s.store.AddTasks(ctx, id, result.Items); err != nil {
			return nil, fmt.Errorf("save tasks: %w", err)
		}
	case extraction.StatusNoStructuredOutput:
		outcome.Notice, outcome.NoticeLevel = noticeSoft, NoticeSoft
	default:
		msg := "inference failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		outcome.Notice, outcome.NoticeLevel = noticeHardPrefix+msg, NoticeHard
	}
	if outcome.Notice != "" {
		s.logger.Warn("meeting %d: %s", id, outcome.Notice)
		s.hub.Status(events.TypeNotice, outcome.Notice)
	}

	meeting, err := s.store.Meeting(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	tasks, err := s.store.TasksForMeeting(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	outcome.Meeting = *meeting
	outcome.Tasks = tasks

	s.logger.Info("meeting %d saved with %d tasks (%s)", id, len(tasks), result.Status)
	s.hub.Status(events.TypeMeetingSaved, fmt.Sprintf("Saved %q with %d tasks", title, len(tasks)))
	return outcome, nil
}

// ExtractPreview runs extraction without persisting anything.
func (s *Service) ExtractPreview(ctx context.Context, transcript string) extraction.Result {
	return s.extractor.ExtractItems(ctx, transcript)
}

// Summarize renders a summary of a stored meeting. An empty style resolves
// to the saved summary_style setting and then to formal. Only model-written
// summaries are cached.
func (s *Service) Summarize(ctx context.Context, meetingID int64, style string) (*SummaryOutcome, error) {
	meeting, err := s.store.Meeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.TasksForMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolveStyle(ctx, style)
	if err != nil {
		return nil, err
	}

	ctx = observability.ContextWithMeetingID(ctx, meetingID)
	contents := store.Contents(tasks)
	key := cacheKey(meeting.Title, contents, resolved)
	if cached, ok := s.cache.Get(key); ok {
		return &SummaryOutcome{MeetingID: meetingID, Style: resolved, Text: cached.Text, Source: cached.Source, Cached: true}, nil
	}

	res := s.summarizer.GenerateSummary(ctx, meeting.Title, contents, resolved)
	if res.Source == summary.SourceModel {
		s.cache.Add(key, res)
	}
	return &SummaryOutcome{MeetingID: meetingID, Style: resolved, Text: res.Text, Source: res.Source}, nil
}

func (s *Service) resolveStyle(ctx context.Context, style string) (summary.Style, error) {
	if strings.TrimSpace(style) != "" {
		return summary.ParseStyle(style), nil
	}
	saved, ok, err := s.store.Setting(ctx, store.SettingSummaryStyle)
	if err != nil {
		return "", err
	}
	if ok {
		return summary.ParseStyle(saved), nil
	}
	return summary.StyleFormal, nil
}

func cacheKey(title string, tasks []string, style summary.Style) string {
	return string(style) + "\x00" + title + "\x00" + strings.Join(tasks, "\x00")
}

// Meetings lists all meetings.
func (s *Service) Meetings(ctx context.Context) ([]store.Meeting, error) {
	return s.store.Meetings(ctx)
}

// Meeting returns one meeting.
func (s *Service) Meeting(ctx context.Context, id int64) (*store.Meeting, error) {
	return s.store.Meeting(ctx, id)
}

// RenameMeeting changes a meeting's title.
func (s *Service) RenameMeeting(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrTitleRequired
	}
	return s.store.UpdateMeeting(ctx, id, title)
}

// DeleteMeeting removes a meeting with its tasks.
func (s *Service) DeleteMeeting(ctx context.Context, id int64) error {
	return s.store.DeleteMeeting(ctx, id)
}

// Tasks lists a meeting's tasks, failing with store.ErrNotFound for an
// unknown meeting.
func (s *Service) Tasks(ctx context.Context, meetingID int64) ([]store.Task, error) {
	if _, err := s.store.Meeting(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.store.TasksForMeeting(ctx, meetingID)
}

// AddTask appends a task to an existing meeting.
func (s *Service) AddTask(ctx context.Context, meetingID int64, content string) (*store.Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrContentRequired
	}
	if _, err := s.store.Meeting(ctx, meetingID); err != nil {
		return nil, err
	}
	id, err := s.store.AddTask(ctx, meetingID, content)
	if err != nil {
		return nil, err
	}
	return s.store.Task(ctx, id)
}

// Task returns one task.
func (s *Service) Task(ctx context.Context, id int64) (*store.Task, error) {
	return s.store.Task(ctx, id)
}

// EditTask replaces a task's text.
func (s *Service) EditTask(ctx context.Context, id int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrContentRequired
	}
	return s.store.UpdateTask(ctx, id, content)
}

// SetTaskDone toggles completion.
func (s *Service) SetTaskDone(ctx context.Context, id int64, done bool) error {
	return s.store.SetTaskDone(ctx, id, done)
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	return s.store.DeleteTask(ctx, id)
}

// Setting reads a persisted preference.
func (s *Service) Setting(ctx context.Context, key string) (string, bool, error) {
	return s.store.Setting(ctx, key)
}

// SetSetting stores a preference. summary_style values are normalised.
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	if key == store.SettingSummaryStyle {
		value = string(summary.ParseStyle(value))
	}
	return s.store.SetSetting(ctx, key, value)
}

// ModelStatus reports whether weights are on disk and the engine is up.
func (s *Service) ModelStatus() ModelStatus {
	var st ModelStatus
	if s.provisioner != nil {
		st.Path = s.provisioner.ModelPath()
		st.Present = s.provisioner.ModelExists()
	}
	if s.engine != nil {
		st.EngineReady = s.engine.Ready()
	}
	if last, ok := s.hub.Last(); ok && (last.Type == events.TypeModelStatus || last.Type == events.TypeModelProgress) {
		st.Status = last.Message
	}
	return st
}

// PrepareModel provisions the weights, broadcasting status and progress to
// the hub and to the optional callbacks.
func (s *Service) PrepareModel(ctx context.Context, onStatus localmodel.StatusFunc, onProgress localmodel.ProgressFunc) (localmodel.ModelHandle, error) {
	if s.provisioner == nil {
		return localmodel.ModelHandle{}, ErrNoProvisioner
	}
	var lastStatus string
	status := func(msg string) {
		lastStatus = msg
		s.hub.Status(events.TypeModelStatus, msg)
		if onStatus != nil {
			onStatus(msg)
		}
	}
	progress := func(fraction float64) {
		s.hub.Progress(lastStatus, fraction)
		if onProgress != nil {
			onProgress(fraction)
		}
	}
	handle, err := s.provisioner.EnsureModelReady(ctx, status, progress)
	if err != nil {
		s.hub.Status(events.TypeModelStatus, "Model provisioning failed: "+err.Error())
		return localmodel.ModelHandle{}, err
	}
	return handle, nil
}
