package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/http/middleware"
	"github.com/tbourn/dogblood-backend/internal/services"
	"github.com/tbourn/dogblood-backend/internal/utils"
)

// UploadResponse is the result of an analysis run.
type UploadResponse struct {
	TestID           string `json:"test_id"`
	Analysis         string `json:"analysis"`
	Status           string `json:"status" example:"completed"`
	CreditsRemaining int    `json:"credits_remaining" example:"2"`
}

// BloodTestResponse is one stored analysis.
type BloodTestResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename" example:"rex_cbc.pdf"`
	Analysis  string    `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status" example:"completed"`
}

// BloodTestSummary is a list entry.
type BloodTestSummary struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

// UploadBloodTest godoc
// @ID          uploadBloodTest
// @Summary     Analyze a blood test PDF
// @Description Extracts the PDF text, runs the analysis, renders a report and consumes one credit. Nothing is charged on failure. A repeated Idempotency-Key replays the first result.
// @Tags        BloodTests
// @Accept      mpfd
// @Produce     json
// @Security    BearerAuth
// @Param       file             formData  file    true   "Blood test PDF"
// @Param       Idempotency-Key  header    string  false  "Replay key"
// @Success     200  {object}  handlers.UploadResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the result was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Insufficient credit, non-PDF or empty extraction"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     413  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Analysis or report failure"
// @Router      /blood-test/upload [post]
func (h *Handlers) UploadBloodTest(c *gin.Context) {
	key, _ := middleware.GetIdempotencyKey(c)
	up := services.Upload{IdempotencyKey: key}

	// Multipart framing overhead on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+64<<10)
	fh, err := c.FormFile("file")
	switch {
	case err == nil:
		data, rerr := readUpload(fh, h.MaxUploadBytes)
		if rerr != nil {
			h.uploadReadError(c, rerr)
			return
		}
		up.Filename, up.Data = fh.Filename, data
	case isTooLarge(err):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
		return
	case !middleware.IsReplay(c):
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "a PDF file is required in field \"file\"")
		return
	}

	res, err := h.analysis.Submit(c.Request.Context(), userID(c), up)
	if err != nil {
		writeServiceError(c, err, uploadMessage(err))
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, UploadResponse{
		TestID:           res.TestID,
		Analysis:         res.Analysis,
		Status:           res.Status,
		CreditsRemaining: res.CreditsRemaining,
	})
}

// GetBloodTest godoc
// @ID          getBloodTest
// @Summary     Get an analysis
// @Tags        BloodTests
// @Produce     json
// @Security    BearerAuth
// @Param       test_id  path      string  true  "Blood test ID"
// @Success     200      {object}  handlers.BloodTestResponse
// @Failure     401      {object}  handlers.ErrorResponse
// @Failure     404      {object}  handlers.ErrorResponse  "Not found or not owned"
// @Router      /blood-test/{test_id} [get]
func (h *Handlers) GetBloodTest(c *gin.Context) {
	bt, err := h.analysis.Get(c.Request.Context(), userID(c), c.Param("test_id"))
	if err != nil {
		writeServiceError(c, err, notFoundMessage(err))
		return
	}
	ok(c, http.StatusOK, BloodTestResponse{
		ID:        bt.ID,
		Filename:  bt.Filename,
		Analysis:  bt.Analysis,
		CreatedAt: bt.CreatedAt,
		Status:    bt.Status,
	})
}

// DownloadReport godoc
// @ID          downloadReport
// @Summary     Download the PDF report
// @Tags        BloodTests
// @Produce     application/pdf
// @Security    BearerAuth
// @Param       test_id  path  string  true  "Blood test ID"
// @Success     200      {file}    binary
// @Failure     401      {object}  handlers.ErrorResponse
// @Failure     404      {object}  handlers.ErrorResponse
// @Router      /blood-test/{test_id}/download [get]
func (h *Handlers) DownloadReport(c *gin.Context) {
	rep, err := h.analysis.Download(c.Request.Context(), userID(c), c.Param("test_id"))
	if err != nil {
		writeServiceError(c, err, notFoundMessage(err))
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rep.Filename}))
	c.Data(http.StatusOK, "application/pdf", rep.PDF)
}

// ListBloodTests godoc
// @ID          listBloodTests
// @Summary     List the user's analyses
// @Description Newest first. Supports a weak ETag via If-None-Match.
// @Tags        User
// @Produce     json
// @Security    BearerAuth
// @Param       limit          query   int     false  "Max entries"  minimum(1) maximum(100) default(100)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   handlers.BloodTestSummary
// @Header      200  {string}  ETag  "Weak ETag for the current list"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /user/blood-tests [get]
func (h *Handlers) ListBloodTests(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	limit := utils.ClampLimit(c.Query("limit"), services.MaxListLimit, services.MaxListLimit)

	if count, newest, err := h.analysis.Stats(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"tests:%s:%d:%d:%d"`, uid, count, ts, limit)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.analysis.List(ctx, uid, limit)
	if err != nil {
		writeServiceError(c, err, "")
		return
	}
	out := make([]BloodTestSummary, 0, len(items))
	for _, bt := range items {
		out = append(out, BloodTestSummary{ID: bt.ID, Filename: bt.Filename, CreatedAt: bt.CreatedAt, Status: bt.Status})
	}
	ok(c, http.StatusOK, out)
}

// readUpload reads at most max bytes of the uploaded part.
func readUpload(fh *multipart.FileHeader, max int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errUploadTooLarge
	}
	return data, nil
}

var errUploadTooLarge = errors.New("upload exceeds limit")

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || errors.Is(err, errUploadTooLarge)
}

func (h *Handlers) uploadReadError(c *gin.Context, err error) {
	if isTooLarge(err) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "could not read uploaded file")
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInsufficientCredit):
		return "Insufficient credits"
	case errors.Is(err, services.ErrExtraction):
		return "No text could be extracted from the PDF"
	}
	return ""
}

func notFoundMessage(err error) string {
	if errors.Is(err, services.ErrNotFound) {
		return "Blood test not found"
	}
	return ""
}
