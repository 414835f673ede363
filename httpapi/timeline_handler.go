package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fundflow/contingency"
	"fundflow/middleware"
	"fundflow/pkg/logger"
	"fundflow/storage"
	"fundflow/timeline"
)

type TimelineHandler struct {
	timelines *timeline.Service
	forms     *contingency.Service
	invoices  *storage.InvoiceStore
}

func NewTimelineHandler(timelines *timeline.Service, forms *contingency.Service, invoices *storage.InvoiceStore) *TimelineHandler {
	return &TimelineHandler{timelines: timelines, forms: forms, invoices: invoices}
}

type proposeRequest struct {
	StartupID string           `json:"startup_id"`
	Amounts   map[string]int64 `json:"amounts"`
}

// Propose creates a new pending timeline for a startup.
func (h *TimelineHandler) Propose(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	amounts := make(map[timeline.StageKey]int64, len(req.Amounts))
	for key, amount := range req.Amounts {
		amounts[timeline.StageKey(key)] = amount
	}

	rec, err := h.timelines.Propose(c.Request.Context(), timeline.ProposeParams{
		ActorID:   middleware.GetUserID(c),
		StartupID: req.StartupID,
		Amounts:   amounts,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "timeline proposed", "timeline_id", rec.ID, "startup_id", rec.StartupID)

	c.JSON(http.StatusCreated, timelineView(rec, nil))
}

// Current returns the caller's current timeline with its contingency queue.
func (h *TimelineHandler) Current(c *gin.Context) {
	rec, err := h.timelines.CurrentForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	forms, err := h.forms.ListForTimeline(c.Request.Context(), rec.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, timelineView(rec, forms))
}

// Get returns one timeline with its contingency queue.
func (h *TimelineHandler) Get(c *gin.Context) {
	rec, err := h.timelines.Get(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	forms, err := h.forms.ListForTimeline(c.Request.Context(), rec.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, timelineView(rec, forms))
}

// Accept decides the gate in favour of the proposal.
func (h *TimelineHandler) Accept(c *gin.Context) {
	h.decide(c, true)
}

// Reject decides the gate against the proposal.
func (h *TimelineHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *TimelineHandler) decide(c *gin.Context, accept bool) {
	params := timeline.DecideParams{
		TimelineID: c.Param("id"),
		ActorID:    middleware.GetUserID(c),
	}

	var (
		rec timeline.Timeline
		err error
	)
	if accept {
		rec, err = h.timelines.Accept(c.Request.Context(), params)
	} else {
		rec, err = h.timelines.Reject(c.Request.Context(), params)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "timeline gate decided", "timeline_id", rec.ID, "acceptance", rec.Acceptance)

	c.JSON(http.StatusOK, timelineView(rec, nil))
}

// Pay triggers the active stage's funding release.
func (h *TimelineHandler) Pay(c *gin.Context) {
	result, err := h.timelines.ProcessPayment(c.Request.Context(), timeline.PayParams{
		TimelineID: c.Param("id"),
		ActorID:    middleware.GetUserID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "stage payment processed",
		"timeline_id", result.Timeline.ID,
		"stage", result.Stage.Key,
		"amount", result.Stage.Amount,
	)

	c.JSON(http.StatusOK, gin.H{
		"timeline": timelineView(result.Timeline, nil),
		"receipt": gin.H{
			"id":        result.Receipt.ID,
			"amount":    result.Receipt.Amount,
			"reference": result.Receipt.Reference,
		},
		"paid_stage": result.Stage.Key,
	})
}

// Events returns the append-only event feed.
func (h *TimelineHandler) Events(c *gin.Context) {
	events, err := h.timelines.Events(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(events))
	for _, ev := range events {
		out = append(out, gin.H{
			"seq":        ev.Seq,
			"type":       ev.Type,
			"actor_id":   ev.ActorID,
			"payload":    string(ev.Payload),
			"created_at": ev.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// FileForm accepts a multipart contingency request: description,
// funding_amount, stage_of_funding, and zero or more invoice attachments
// that are uploaded to object storage before the form is persisted.
func (h *TimelineHandler) FileForm(c *gin.Context) {
	description := c.PostForm("description")
	stageKey := c.PostForm("stage_of_funding")
	amount, err := strconv.ParseInt(c.PostForm("funding_amount"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "funding_amount must be an integer", "field": "funding_amount"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	invoices := []contingency.Invoice{}
	for _, header := range form.File["invoices"] {
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read invoice attachment"})
			return
		}

		objectName := fmt.Sprintf("invoices/%s/%s-%s", c.Param("id"), uuid.New().String(), header.Filename)
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		attachment, err := h.invoices.Upload(c.Request.Context(), objectName, file, header.Size, contentType)
		file.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store invoice"})
			return
		}

		invoices = append(invoices, contingency.Invoice{
			Identifier: attachment.Identifier,
			URL:        attachment.URL,
		})
	}

	filed, err := h.forms.File(c.Request.Context(), contingency.FileParams{
		TimelineID:  c.Param("id"),
		ActorID:     middleware.GetUserID(c),
		Stage:       timeline.StageKey(stageKey),
		Description: description,
		Amount:      amount,
		Invoices:    invoices,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contingency form filed", "form_id", filed.ID, "stage", filed.Stage)

	c.JSON(http.StatusCreated, formView(filed))
}

// AcceptForm approves a pending contingency form.
func (h *TimelineHandler) AcceptForm(c *gin.Context) {
	h.decideForm(c, true)
}

// RejectForm declines a pending contingency form.
func (h *TimelineHandler) RejectForm(c *gin.Context) {
	h.decideForm(c, false)
}

func (h *TimelineHandler) decideForm(c *gin.Context, accept bool) {
	actorID := middleware.GetUserID(c)
	formID := c.Param("formID")

	var (
		form contingency.Form
		err  error
	)
	if accept {
		form, err = h.forms.Accept(c.Request.Context(), actorID, formID)
	} else {
		form, err = h.forms.Reject(c.Request.Context(), actorID, formID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "contingency form decided", "form_id", form.ID, "status", form.Status)

	c.JSON(http.StatusOK, formView(form))
}

func timelineView(rec timeline.Timeline, forms []contingency.Form) gin.H {
	stages := make([]gin.H, 0, len(rec.Stages))
	for _, s := range rec.Stages {
		stages = append(stages, gin.H{
			"key":    s.Key,
			"amount": s.Amount,
			"status": s.Status,
		})
	}

	view := gin.H{
		"id":          rec.ID,
		"startup_id":  rec.StartupID,
		"agency_id":   rec.AgencyID,
		"proposed_by": rec.ProposedBy,
		"acceptance":  rec.Acceptance,
		"stages":      stages,
		"version":     rec.Version,
		"created_at":  rec.CreatedAt.Format(time.RFC3339),
		"updated_at":  rec.UpdatedAt.Format(time.RFC3339),
	}

	if forms != nil {
		out := make([]gin.H, 0, len(forms))
		for _, f := range forms {
			out = append(out, formView(f))
		}
		view["contingency_forms"] = out
	}

	return view
}

func formView(f contingency.Form) gin.H {
	invoices := make([]gin.H, 0, len(f.Invoices))
	for _, inv := range f.Invoices {
		invoices = append(invoices, gin.H{
			"identifier": inv.Identifier,
			"url":        inv.URL,
		})
	}

	return gin.H{
		"id":               f.ID,
		"timeline_id":      f.TimelineID,
		"stage_of_funding": f.Stage,
		"description":      f.Description,
		"funding_amount":   f.Amount,
		"status":           f.Status,
		"invoices":         invoices,
		"created_at":       f.CreatedAt.Format(time.RFC3339),
	}
}
