package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/storykeeper/internal/server/models"
	"github.com/dmitrijs2005/storykeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userSummary is what register and login hand back next to the token.
type userSummary struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// storyRequest accepts visitedDate as a JSON number or a numeric string.
type storyRequest struct {
	Title           string           `json:"title"`
	Story           string           `json:"story"`
	VisitedLocation models.Locations `json:"visitedLocation"`
	ImageURL        string           `json:"imageUrl"`
	VisitedDate     json.Number      `json:"visitedDate"`
}

func (r storyRequest) input() services.StoryInput {
	return services.StoryInput{
		Title:           r.Title,
		Story:           r.Story,
		VisitedLocation: r.VisitedLocation,
		ImageURL:        r.ImageURL,
		VisitedDate:     r.VisitedDate.String(),
	}
}

type favouriteRequest struct {
	IsFavourite *bool `json:"isFavourite"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) createAccount(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	u, token, err := s.users.Register(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, "Registration Successful", gin.H{
		"user":        userSummary{FullName: u.FullName, Email: u.Email},
		"accessToken": token,
	})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	u, token, err := s.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Login Successful", gin.H{
		"user":        userSummary{FullName: u.FullName, Email: u.Email},
		"accessToken": token,
	})
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.users.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"user": u})
}

// imageUpload stores the multipart field "image". A request without a file
// gets the placeholder URL.
func (s *Server) imageUpload(c *gin.Context) {
	if s.opts.MaxUploadBytes > 0 {
		// room for multipart framing around the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+1<<20)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			fail(c, http.StatusRequestEntityTooLarge, "Image is too large")
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			ok(c, http.StatusCreated, "No image uploaded, using placeholder", gin.H{"imageUrl": s.images.Placeholder()})
		default:
			fail(c, http.StatusBadRequest, "Invalid multipart form")
		}
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.failWith(c, err)
		return
	}
	defer f.Close()

	ref, err := s.images.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, "Image uploaded successfully", gin.H{"imageUrl": ref})
}

func (s *Server) deleteImage(c *gin.Context) {
	deleted, err := s.images.DeleteOrphan(c.Request.Context(), c.Query("imageUrl"))
	if err != nil {
		s.failWith(c, err)
		return
	}
	if !deleted {
		respond(c, http.StatusOK, true, "Image not found", nil)
		return
	}
	ok(c, http.StatusOK, "Image deleted successfully", nil)
}

func (s *Server) addStory(c *gin.Context) {
	var req storyRequest
	if !bindJSON(c, &req) {
		return
	}

	st, err := s.stories.Add(c.Request.Context(), currentUser(c), req.input())
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, "Added Successfully", gin.H{"story": st})
}

func (s *Server) getAllStories(c *gin.Context) {
	list, err := s.stories.List(c.Request.Context(), currentUser(c))
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"stories": list})
}

func (s *Server) editStory(c *gin.Context) {
	var req storyRequest
	if !bindJSON(c, &req) {
		return
	}

	st, err := s.stories.Edit(c.Request.Context(), currentUser(c), c.Param("id"), req.input())
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Update Successful", gin.H{"story": st})
}

func (s *Server) deleteStory(c *gin.Context) {
	if err := s.stories.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Travel story deleted successfully", nil)
}

func (s *Server) updateIsFavourite(c *gin.Context) {
	var req favouriteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsFavourite == nil {
		fail(c, http.StatusBadRequest, "isFavourite is required")
		return
	}

	st, err := s.stories.SetFavourite(c.Request.Context(), currentUser(c), c.Param("id"), *req.IsFavourite)
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "Update Successful", gin.H{"story": st})
}

func (s *Server) search(c *gin.Context) {
	list, err := s.stories.Search(c.Request.Context(), currentUser(c), c.Query("query"))
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"stories": list})
}

func (s *Server) filter(c *gin.Context) {
	list, err := s.stories.FilterByDate(c.Request.Context(), currentUser(c), c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		s.failWith(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"stories": list})
}
