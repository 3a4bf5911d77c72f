package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ingestloom-backend/internal/crawler"
	"ingestloom-backend/internal/indexer"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/queue"
	"ingestloom-backend/internal/storage"
	"ingestloom-backend/models"
	"ingestloom-backend/utils"

	"github.com/gin-gonic/gin"
)

type ingestJSONRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
	URL    string `json:"url"`
}

// handleIngest accepts multipart uploads (files + optional text + optional
// url) or a JSON body (text and/or url), stores everything under the user's
// directory and triggers indexing. Indexing failures do not fail the
// request: the content is saved and eligible for retry, so the response is a
// 200 carrying {"indexed": false, "reason": "error"}.
func handleIngest(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := c.GetHeader("Content-Type")
		if strings.Contains(contentType, "multipart/form-data") {
			ingestMultipart(c, deps)
			return
		}
		ingestJSON(c, deps)
	}
}

func ingestMultipart(c *gin.Context, deps *Deps) {
	form, err := c.MultipartForm()
	if err != nil {
		utils.RespondWithBadRequest(c, "invalid multipart form", gin.H{"error": err.Error()})
		return
	}

	userID := storage.SanitizeUserID(c.PostForm("userId"))
	us, err := deps.Storage.ForUser(userID)
	if err != nil {
		utils.RespondWithInternalError(c, "failed to prepare storage", nil)
		return
	}

	var saved []string
	var totalSize int64
	for _, fh := range form.File["files"] {
		if fh.Size > deps.Cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, fmt.Sprintf("file %s exceeds the size limit", fh.Filename),
				gin.H{"limit": deps.Cfg.MaxFileSize})
			return
		}
		src, err := fh.Open()
		if err != nil {
			utils.RespondWithInternalError(c, "failed to read upload", gin.H{"file": fh.Filename})
			return
		}
		n, err := us.SaveStream(fh.Filename, src)
		src.Close()
		if err != nil {
			utils.RespondWithBadRequest(c, "failed to save upload", gin.H{"file": fh.Filename, "error": err.Error()})
			return
		}
		totalSize += n
		saved = append(saved, fh.Filename)
	}

	resp := &models.IngestResponse{Success: true, UserID: us.UserID(), Files: saved}
	if resp.Files == nil {
		resp.Files = []string{}
	}

	if err := saveTextAndCrawl(c, deps, us, c.PostForm("text"), c.PostForm("url"), resp, &totalSize); err != nil {
		return // response already written
	}

	resp.Indexing = runIndexing(c, deps, us.UserID(), totalSize)
	c.JSON(http.StatusOK, resp)
}

func ingestJSON(c *gin.Context, deps *Deps) {
	var req ingestJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "invalid request body", gin.H{"error": err.Error()})
		return
	}

	us, err := deps.Storage.ForUser(storage.SanitizeUserID(req.UserID))
	if err != nil {
		utils.RespondWithInternalError(c, "failed to prepare storage", nil)
		return
	}

	resp := &models.IngestResponse{Success: true, UserID: us.UserID(), Files: []string{}}
	var totalSize int64
	if err := saveTextAndCrawl(c, deps, us, req.Text, req.URL, resp, &totalSize); err != nil {
		return
	}

	resp.Indexing = runIndexing(c, deps, us.UserID(), totalSize)
	c.JSON(http.StatusOK, resp)
}

// saveTextAndCrawl persists the optional pasted text and crawled URL. A
// non-nil return means an error response has already been sent.
func saveTextAndCrawl(c *gin.Context, deps *Deps, us storage.UserStore, text, rawURL string, resp *models.IngestResponse, totalSize *int64) error {
	if strings.TrimSpace(text) != "" {
		name := fmt.Sprintf("text-%d.txt", time.Now().UnixMilli())
		if err := us.Save(name, []byte(text)); err != nil {
			utils.RespondWithInternalError(c, "failed to save text", nil)
			return err
		}
		*totalSize += int64(len(text))
		resp.Text = name
	}

	if rawURL != "" {
		page, err := crawler.Fetch(c.Request.Context(), rawURL, deps.Cfg.CrawlTimeout)
		if err != nil {
			utils.RespondWithBadRequest(c, "failed to crawl URL", gin.H{"url": rawURL, "error": err.Error()})
			return err
		}
		name := fmt.Sprintf("crawl-%d.txt", time.Now().UnixMilli())
		if err := us.Save(name, []byte(page.Text)); err != nil {
			utils.RespondWithInternalError(c, "failed to save crawled page", nil)
			return err
		}
		meta, _ := json.Marshal(models.CrawlMeta{
			OriginalURL: page.URL,
			Title:       page.Title,
			CrawledAt:   time.Now().UTC(),
		})
		// Sidecar failure is not fatal: the listing just loses the URL.
		if err := us.Save(name+".meta.json", meta); err != nil {
			logger.Warn("failed to write crawl sidecar", "file", name, "error", err)
		}
		*totalSize += int64(len(page.Text))
		resp.Crawl = &models.CrawlResult{URL: page.URL, File: name}
	}
	return nil
}

// runIndexing indexes synchronously, or defers to the worker when the new
// payload is large enough to make the caller wait too long.
func runIndexing(c *gin.Context, deps *Deps, userID string, totalSize int64) any {
	if deps.Queue != nil && totalSize > deps.Cfg.SyncProcessingLimit {
		task, err := queue.NewIndexTask(userID)
		if err == nil {
			if _, err = deps.Queue.Enqueue(task); err == nil {
				logger.Info("deferred indexing to worker", "user_id", userID, "bytes", totalSize)
				return &indexer.Result{Indexed: false, Reason: indexer.ReasonQueued}
			}
		}
		logger.Error("failed to enqueue indexing task; falling back to inline", "user_id", userID, "error", err)
	}

	result, err := deps.Indexer.IndexUserUploads(c.Request.Context(), userID)
	if err != nil {
		logger.Error("indexing failed", "user_id", userID, "error", err)
		return &indexer.Result{Indexed: false, Reason: indexer.ReasonError}
	}
	return result
}
