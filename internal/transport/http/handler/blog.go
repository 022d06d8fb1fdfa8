package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bytebits/internal/app"
	"bytebits/internal/session"
	"bytebits/internal/transport/http/middleware"
	"bytebits/internal/transport/http/response"
	"bytebits/internal/validate"
)

type BlogHandler struct {
	posts    *app.PostService
	accounts *app.AccountService
	sessions *session.Store
}

func NewBlogHandler(posts *app.PostService, accounts *app.AccountService, sessions *session.Store) *BlogHandler {
	return &BlogHandler{posts: posts, accounts: accounts, sessions: sessions}
}

func (h *BlogHandler) List(c *gin.Context) {
	posts, err := h.posts.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}

	var flashes []session.Flash
	if sid, ok := middleware.SessionID(c); ok {
		flashes, _ = h.sessions.PopFlashes(c.Request.Context(), sid)
	}

	response.OK(c, gin.H{"posts": posts, "flash": flashes})
}

type CreatePostRequest struct {
	Title   string `form:"title" json:"title"`
	Content string `form:"content" json:"content"`
}

func (h *BlogHandler) Create(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req CreatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	clean, errs := validate.Run(map[string]string{
		"title":   req.Title,
		"content": req.Content,
	}, postFields())
	if len(errs) > 0 {
		response.ValidationError(c, http.StatusBadRequest, errs)
		return
	}

	// Author is a snapshot of the creator's username.
	user, err := h.accounts.AccountSettings(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}

	post, err := h.posts.Create(c.Request.Context(), app.CreatePostInput{
		Title:   clean["title"],
		Content: clean["content"],
		Author:  user.Username,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "All fields are required")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}
	response.OK(c, post)
}

func (h *BlogHandler) Get(c *gin.Context) {
	id, ok := parsePostID(c)
	if !ok {
		return
	}

	post, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrPostNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "Post not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}
	response.OK(c, post)
}

type EditPostRequest struct {
	Title   string `form:"title" json:"title"`
	Content string `form:"content" json:"content"`
}

func (h *BlogHandler) Edit(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	id, ok := parsePostID(c)
	if !ok {
		return
	}

	var req EditPostRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	clean, errs := validate.Run(map[string]string{
		"title":   req.Title,
		"content": req.Content,
	}, postFields())
	if len(errs) > 0 {
		response.ValidationError(c, http.StatusBadRequest, errs)
		return
	}

	user, err := h.accounts.AccountSettings(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}

	post, err := h.posts.Update(c.Request.Context(), user.Username, id, clean["title"], clean["content"])
	if err != nil {
		h.writePostError(c, err)
		return
	}
	response.OK(c, post)
}

func (h *BlogHandler) Delete(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	id, ok := parsePostID(c)
	if !ok {
		return
	}

	user, err := h.accounts.AccountSettings(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}

	if err := h.posts.Delete(c.Request.Context(), user.Username, id); err != nil {
		h.writePostError(c, err)
		return
	}
	response.OKMessage(c, "Post deleted.", nil)
}

func (h *BlogHandler) Stats(c *gin.Context) {
	stats, err := h.posts.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		return
	}
	response.OK(c, stats)
}

func (h *BlogHandler) writePostError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrPostNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Post not found")
	case errors.Is(err, app.ErrNotPostAuthor):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "All fields are required")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
	}
}

func postFields() []validate.Field {
	return []validate.Field{
		{Name: "title", Rules: []validate.Rule{
			validate.Trim(),
			validate.Required("Title is required"),
			validate.MaxLen(100, "Title must be less than 100 characters"),
			validate.StripHTML(),
		}},
		{Name: "content", Rules: []validate.Rule{
			validate.Trim(),
			validate.Required("Content is required"),
			validate.StripHTML(),
		}},
	}
}

func parsePostID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Post not found")
		return 0, false
	}
	return uint(id), true
}
