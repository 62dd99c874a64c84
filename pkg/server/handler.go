package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/repository"
	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
)

var artifactTypes = map[string]string{
	model.TextExt:  "text/plain; charset=utf-8",
	model.AudioExt: "audio/mpeg",
}

type indexPage struct {
	Sessions []*model.Session
	Context  pipeline.ContextStatus
	All      bool
	Limit    int
}

func (s *Server) index(c *gin.Context) {
	ctx := c.Request.Context()
	all := c.Query("all") == "1"

	sessions, err := s.uc.ListSessions(ctx, pipeline.ListOptions{IncludePartial: all})
	if err != nil {
		logging.From(ctx).Error("failed to list sessions", "error", err)
		c.String(http.StatusInternalServerError, "Error listing results: %s", err.Error())
		return
	}

	c.HTML(http.StatusOK, "index.html", indexPage{
		Sessions: sessions,
		Context:  s.uc.ContextStatus(),
		All:      all,
		Limit:    model.MaxContextLength,
	})
}

func (s *Server) script(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", recorderScript)
}

func (s *Server) uploadAudio(c *gin.Context) {
	ctx := c.Request.Context()

	fh, err := c.FormFile("audio_data")
	if err != nil {
		logging.From(ctx).Debug("no audio in request", "error", err)
		if submittedEmpty(c, "audio_data") {
			c.String(http.StatusBadRequest, "No selected file")
		} else {
			c.String(http.StatusBadRequest, "No file part")
		}
		return
	}
	if fh.Filename == "" {
		c.String(http.StatusBadRequest, "No selected file")
		return
	}

	f, err := fh.Open()
	if err != nil {
		logging.From(ctx).Error("failed to open uploaded audio", "error", err)
		c.String(http.StatusInternalServerError, "Error processing audio: %s", err.Error())
		return
	}
	defer f.Close()

	_, err = s.uc.Ask(ctx, &pipeline.AskInput{
		Audio:       f,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	})
	if err != nil {
		// Ask has logged the failure with its stage
		switch model.KindOf(err) {
		case model.KindValidation:
			c.String(http.StatusBadRequest, "%s", err.Error())
		case model.KindMissingContext:
			c.String(http.StatusBadRequest, model.MissingContextMessage)
		default:
			c.String(http.StatusInternalServerError, "Error processing audio: %s", err.Error())
		}
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (s *Server) uploadDocument(c *gin.Context) {
	ctx := c.Request.Context()

	fh, err := c.FormFile("book")
	if err != nil {
		if submittedEmpty(c, "book") {
			c.String(http.StatusBadRequest, "No selected file")
		} else {
			c.String(http.StatusBadRequest, "No book file uploaded")
		}
		return
	}
	if fh.Filename == "" {
		c.String(http.StatusBadRequest, "No selected file")
		return
	}

	f, err := fh.Open()
	if err != nil {
		logging.From(ctx).Error("failed to open uploaded document", "error", err)
		c.String(http.StatusInternalServerError, "Error reading book: %s", err.Error())
		return
	}
	defer f.Close()

	result, err := s.uc.UploadDocument(ctx, &pipeline.DocumentInput{
		Document: f,
		Filename: fh.Filename,
	})
	if err != nil {
		if model.KindOf(err) == model.KindValidation {
			c.String(http.StatusBadRequest, "%s", err.Error())
			return
		}
		c.String(http.StatusInternalServerError, "Error reading book: %s", err.Error())
		return
	}

	logging.From(ctx).Info("book uploaded",
		"filename", fh.Filename,
		"chars", result.Characters,
		"truncated", result.Truncated,
	)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) result(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("filename")

	path, err := s.uc.ArtifactPath(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrArtifactNotFound) {
			c.String(http.StatusNotFound, "Not Found")
			return
		}
		logging.From(ctx).Error("failed to resolve result", "name", name, "error", err)
		c.String(http.StatusInternalServerError, "Error reading result: %s", err.Error())
		return
	}

	if ct, ok := artifactTypes[filepath.Ext(name)]; ok {
		c.Header("Content-Type", ct)
	}
	c.File(path)
}

// submittedEmpty reports whether field was sent with an empty file name. The multipart
// reader keeps such a part as a plain value instead of a file.
func submittedEmpty(c *gin.Context, field string) bool {
	form := c.Request.MultipartForm
	return form != nil && len(form.Value[field]) > 0
}
