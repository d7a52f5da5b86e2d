package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/hunkim/solar-vector-store/internal/errs"
	"github.com/hunkim/solar-vector-store/internal/search"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

// details maps error kinds to the message returned to callers. Kinds that
// are missing fall back to the status text.
type details map[error]string

const (
	msgStoreNotFound = "Vector store not found"
	msgFileNotFound  = "File not found"
	msgInvalidUpload = "Invalid file upload"
)

// fail logs err and answers with a generic detail message. Internal error
// text never reaches the caller.
func fail(c *gin.Context, err error, msgs details) {
	status := errs.HTTPStatus(err)
	detail, ok := msgs[errs.Kind(err)]
	if !ok {
		detail = http.StatusText(status)
	}

	fields := []any{"path", c.Request.URL.Path, "status", status, "request_id", c.GetString(requestIDKey), "error", err}
	if status >= http.StatusInternalServerError {
		log.Error(detail, fields...)
	} else {
		log.Debug(detail, fields...)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func badRequest(c *gin.Context, detail string, err error) {
	log.Debug(detail, "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "error", err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": detail})
}

type createStoreRequest struct {
	Name      string  `json:"name"`
	Dimension int     `json:"dimension"`
	Distance  *string `json:"distance"`
}

func (s *Server) createStore(c *gin.Context) {
	var req createStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	distance := vectordb.Cosine
	if req.Distance != nil {
		distance = vectordb.Distance(*req.Distance)
	}

	st, err := s.registry.Create(c.Request.Context(), req.Name, req.Dimension, distance)
	if err != nil {
		fail(c, err, details{
			errs.ErrValidation:   "Invalid vector store parameters",
			errs.ErrBackingStore: "Failed to create vector store",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": st.ID, "name": st.Name})
}

func (s *Server) listStores(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) getStore(c *gin.Context) {
	st, err := s.registry.Get(c.Param("id"))
	if err != nil {
		fail(c, err, details{errs.ErrNotFound: msgStoreNotFound})
		return
	}
	c.JSON(http.StatusOK, st)
}

type updateStoreRequest struct {
	Name     *string `json:"name"`
	Distance *string `json:"distance"`
}

func (s *Server) updateStore(c *gin.Context) {
	var req updateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	var distance *vectordb.Distance
	if req.Distance != nil {
		d := vectordb.Distance(*req.Distance)
		distance = &d
	}

	st, err := s.registry.Update(c.Request.Context(), c.Param("id"), req.Name, distance)
	if err != nil {
		fail(c, err, details{
			errs.ErrNotFound:     msgStoreNotFound,
			errs.ErrValidation:   "Invalid vector store parameters",
			errs.ErrBackingStore: "Failed to update vector store",
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) deleteStore(c *gin.Context) {
	if err := s.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err, details{
			errs.ErrNotFound:     msgStoreNotFound,
			errs.ErrBackingStore: "Failed to delete vector store",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) uploadFile(c *gin.Context) {
	storeID := c.Param("id")
	if _, err := s.registry.Get(storeID); err != nil {
		fail(c, err, details{errs.ErrNotFound: msgStoreNotFound})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, "Uploaded file too large", err)
			return
		}
		badRequest(c, msgInvalidUpload, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, msgInvalidUpload, err)
		return
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		badRequest(c, msgInvalidUpload, err)
		return
	}

	rec, err := s.ingester.Ingest(c.Request.Context(), storeID, filepath.Base(fh.Filename), content)
	if err != nil {
		fail(c, err, details{
			errs.ErrNotFound:     msgStoreNotFound,
			errs.ErrValidation:   msgInvalidUpload,
			errs.ErrParse:        "Document parsing failed",
			errs.ErrEmbedding:    "No embeddings generated",
			errs.ErrBackingStore: "Failed to store embeddings",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"file_id": rec.ID, "pages": rec.Pages})
}

func (s *Server) listFiles(c *gin.Context) {
	files, err := s.registry.ListFiles(c.Param("id"))
	if err != nil {
		fail(c, err, details{errs.ErrNotFound: msgStoreNotFound})
		return
	}
	c.JSON(http.StatusOK, files)
}

func (s *Server) getFile(c *gin.Context) {
	rec, err := s.registry.GetFile(c.Param("id"), c.Param("fid"))
	if err != nil {
		fail(c, err, details{errs.ErrNotFound: msgFileNotFound})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteFile(c *gin.Context) {
	if err := s.registry.DeleteFile(c.Request.Context(), c.Param("id"), c.Param("fid")); err != nil {
		fail(c, err, details{
			errs.ErrNotFound:     msgFileNotFound,
			errs.ErrBackingStore: "Failed to delete file vectors",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	topK := search.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	hits, err := s.searcher.Search(c.Request.Context(), c.Param("id"), req.Query, topK)
	if err != nil {
		fail(c, err, details{
			errs.ErrNotFound:     msgStoreNotFound,
			errs.ErrValidation:   "Invalid query",
			errs.ErrEmbedding:    "Failed to embed query",
			errs.ErrBackingStore: "Search operation failed",
		})
		return
	}
	c.JSON(http.StatusOK, hits)
}
