package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	appsvc "tutorat/internal/app"
	"tutorat/internal/model"
	"tutorat/internal/platform/rabbitmq"
	"tutorat/internal/repository"
	"tutorat/internal/transport/http/response"
)

// AdminHandler is the registry write path for curriculum maintainers plus the
// ingestion triggers. It sits behind the /admin group; exposure is left to the
// deployment (private network or fronting proxy).
type AdminHandler struct {
	docs      *repository.DocumentRepository
	ingest    *appsvc.IngestService
	publisher *rabbitmq.ReindexPublisher
	index     appsvc.VectorIndex
	cache     appsvc.ResultCache
}

func NewAdminHandler(
	docs *repository.DocumentRepository,
	ingest *appsvc.IngestService,
	publisher *rabbitmq.ReindexPublisher,
	index appsvc.VectorIndex,
	cache appsvc.ResultCache,
) *AdminHandler {
	return &AdminHandler{
		docs:      docs,
		ingest:    ingest,
		publisher: publisher,
		index:     index,
		cache:     cache,
	}
}

type UpsertDocumentRequest struct {
	ID         string `json:"id" binding:"required"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Level      string `json:"level" binding:"required"`
	Subject    string `json:"subject" binding:"required"`
	Domain     string `json:"domain"`
	Subdomain  string `json:"subdomain"`
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
}

// UpsertDocument writes a document into the registry. It does not index; the
// caller follows up with an ingest run or a reindex job.
func (h *AdminHandler) UpsertDocument(c *gin.Context) {
	var req UpsertDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	doc := model.Document{
		ID:         req.ID,
		Title:      req.Title,
		Content:    req.Content,
		Level:      req.Level,
		Subject:    req.Subject,
		Domain:     req.Domain,
		Subdomain:  req.Subdomain,
		Source:     req.Source,
		SourceType: req.SourceType,
	}
	if err := doc.Validate(); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	if err := h.docs.Upsert(&doc); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save document failed")
		return
	}
	response.OK(c, doc)
}

func (h *AdminHandler) ListDocuments(c *gin.Context) {
	level := c.Query("level")
	subject := c.Query("subject")

	var (
		docs []model.Document
		err  error
	)
	if level != "" || subject != "" {
		docs, err = h.docs.ListByLevelAndSubject(level, subject)
	} else {
		docs, err = h.docs.ListAll()
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *AdminHandler) GetDocument(c *gin.Context) {
	doc, err := h.docs.GetByID(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load document failed")
		return
	}
	if doc == nil {
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
		return
	}
	response.OK(c, doc)
}

// DeleteDocument removes a document from the registry and its points from the
// vector store, then busts the result cache so stale hits cannot resurface it.
func (h *AdminHandler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.docs.GetByID(id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load document failed")
		return
	}
	if doc == nil {
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
		return
	}
	if err := h.index.DeleteByDocument(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "delete indexed chunks failed")
		return
	}
	if err := h.docs.Delete(id); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		return
	}
	if err := h.cache.InvalidateAll(c.Request.Context()); err != nil {
		log.Printf("invalidate cache after delete failed: %v", err)
	}
	response.OK(c, gin.H{"deleted": id})
}

// Ingest runs the pipeline over the whole registry synchronously and returns
// the report. Heavy runs belong on the indexer CLI; this endpoint exists for
// small corpora and staging environments.
func (h *AdminHandler) Ingest(c *gin.Context) {
	report, err := h.ingest.RunFromRegistry(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingestion failed: "+err.Error())
		return
	}
	response.OK(c, report)
}

// Reindex enqueues a reindex job for one document. The worker picks it up;
// the endpoint only confirms the job left.
func (h *AdminHandler) Reindex(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.docs.GetByID(id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load document failed")
		return
	}
	if doc == nil {
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
		return
	}

	job := rabbitmq.NewReindexJob(id)
	if err := h.publisher.Publish(c.Request.Context(), job); err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "enqueue reindex job failed")
		return
	}
	response.OK(c, gin.H{"job_id": job.JobID, "document_id": id})
}

// Stats merges registry and vector store counts. The store side is best
// effort: when it is down the registry numbers still come back.
func (h *AdminHandler) Stats(c *gin.Context) {
	count, err := h.docs.Count()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "count documents failed")
		return
	}

	data := gin.H{"documents": count}
	stats, err := h.index.CollectionStats(c.Request.Context())
	if err != nil {
		data["vector_store"] = gin.H{"available": false}
	} else {
		data["vector_store"] = gin.H{
			"available": true,
			"points":    stats.PointCount,
			"status":    stats.Status,
		}
	}
	response.OK(c, data)
}
