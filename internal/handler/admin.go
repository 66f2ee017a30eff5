package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/enrollment"
	"faceattend/internal/identity"
	"faceattend/internal/imaging"
	"faceattend/internal/storage"
)

type studentView struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Enrolled  bool   `json:"enrolled"`
	CreatedAt string `json:"created_at"`
}

func viewOf(id identity.Identity) studentView {
	return studentView{
		ID:        id.ID,
		UserID:    id.UserID,
		Name:      id.Name,
		Enrolled:  id.Enrolled(),
		CreatedAt: id.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// ListStudents returns all students ordered by name.
func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.identities.ListStudents(c.Request.Context())
	if err != nil {
		h.internalError(c, "list students", err)
		return
	}
	out := make([]studentView, 0, len(students))
	for _, s := range students {
		out = append(out, viewOf(s))
	}
	c.JSON(http.StatusOK, gin.H{"students": out})
}

type createStudentForm struct {
	UserID   string `form:"user_id" binding:"required"`
	Name     string `form:"name" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// CreateStudent registers a student and enrolls the uploaded face image.
// The identity row and the stored image are created together or not at all.
func (h *Handler) CreateStudent(c *gin.Context) {
	var form createStudentForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, name and password are required"})
		return
	}
	filename, data, ok := faceUpload(c)
	if !ok {
		return
	}

	student, err := h.registrar.Register(c.Request.Context(), enrollment.NewStudent{
		UserID:   form.UserID,
		Name:     form.Name,
		Password: form.Password,
		Filename: filename,
		Image:    data,
	})
	if errors.Is(err, enrollment.ErrMissingField) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, name and password are required"})
		return
	}
	if errors.Is(err, identity.ErrDuplicateUserID) {
		c.JSON(http.StatusConflict, gin.H{"error": "user id already exists"})
		return
	}
	if err != nil {
		h.enrollmentError(c, "create student", err)
		return
	}

	logger(c).WithField("identity_id", student.ID).Info("student enrolled")
	c.JSON(http.StatusCreated, viewOf(student))
}

// faceUpload reads the face_image multipart file.
func faceUpload(c *gin.Context) (string, []byte, bool) {
	file, header, err := c.Request.FormFile("face_image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "face image is required"})
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read face image"})
		return "", nil, false
	}
	return header.Filename, data, true
}

// enrollmentError maps rejected reference images to client errors.
func (h *Handler) enrollmentError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "face image must be a JPG or PNG"})
	case errors.Is(err, enrollment.ErrImageTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "face image too large"})
	case errors.Is(err, enrollment.ErrNoFaceDetected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in the image"})
	case errors.Is(err, storage.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": "face image was just replaced, retry"})
	default:
		h.internalError(c, action, err)
	}
}

// student resolves the :id path parameter to a student identity.
func (h *Handler) student(c *gin.Context) (identity.Identity, bool) {
	id, err := h.identities.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return identity.Identity{}, false
	}
	if err != nil {
		h.internalError(c, "load student", err)
		return identity.Identity{}, false
	}
	if id.Role != identity.RoleStudent {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a student"})
		return identity.Identity{}, false
	}
	return id, true
}

// StudentAttendance returns a student's monthly report.
func (h *Handler) StudentAttendance(c *gin.Context) {
	id, ok := h.student(c)
	if !ok {
		return
	}
	h.writeReport(c, id.ID)
}

// StudentFace serves the stored reference image.
func (h *Handler) StudentFace(c *gin.Context) {
	id, ok := h.student(c)
	if !ok {
		return
	}
	if !id.Enrolled() {
		c.Status(http.StatusNotFound)
		return
	}
	data, err := h.images.Open(c.Request.Context(), *id.FaceImage)
	if errors.Is(err, storage.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(c, "open face image", err)
		return
	}
	c.Data(http.StatusOK, imaging.MimeType(*id.FaceImage), data)
}

// ReplaceStudentFace enrolls a new reference image for a student.
func (h *Handler) ReplaceStudentFace(c *gin.Context) {
	id, ok := h.student(c)
	if !ok {
		return
	}
	filename, data, ok := faceUpload(c)
	if !ok {
		return
	}
	updated, err := h.registrar.ReplaceFace(c.Request.Context(), id, filename, data)
	if err != nil {
		h.enrollmentError(c, "replace face", err)
		return
	}
	logger(c).WithField("identity_id", updated.ID).Info("student face replaced")
	c.JSON(http.StatusOK, viewOf(updated))
}
